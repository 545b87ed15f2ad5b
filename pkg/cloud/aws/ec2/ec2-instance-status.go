package aws

import (
	"fmt"

	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/litmuschaos/attrition-go/pkg/cerrors"
	"github.com/litmuschaos/attrition-go/pkg/cloud/aws/common"
)

//GetEC2InstanceStatus returns the state of the instance backing a machine
func GetEC2InstanceStatus(instanceID, region string) (string, error) {

	sess := common.GetAWSSession(region)
	ec2Svc := ec2.New(sess)

	result, err := ec2Svc.DescribeInstances(nil)
	if err != nil {
		return "", cerrors.Error{
			ErrorCode: cerrors.ErrorTypeStatusChecks,
			Reason:    fmt.Sprintf("failed to describe instances: %v", common.CheckAWSError(err).Error()),
			Target:    fmt.Sprintf("{EC2 Instance ID: %v, Region: %v}", instanceID, region),
		}
	}

	for _, reservationDetails := range result.Reservations {
		for _, instanceDetails := range reservationDetails.Instances {
			if *instanceDetails.InstanceId == instanceID {
				return *instanceDetails.State.Name, nil
			}
		}
	}
	return "", cerrors.Error{
		ErrorCode: cerrors.ErrorTypeStatusChecks,
		Reason:    "no instance with the given id in the region",
		Target:    fmt.Sprintf("{EC2 Instance ID: %v, Region: %v}", instanceID, region),
	}
}
