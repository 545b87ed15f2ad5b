package aws

import (
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/litmuschaos/attrition-go/pkg/cerrors"
	"github.com/litmuschaos/attrition-go/pkg/cloud/aws/common"
	"github.com/litmuschaos/attrition-go/pkg/log"
	"github.com/litmuschaos/attrition-go/pkg/utils/retry"
	"github.com/palantir/stacktrace"
	"github.com/sirupsen/logrus"
)

// EC2Stop force-stops the instance backing a machine. Hard kills escalate to
// this when a reboot request alone cannot guarantee the machine goes down.
func EC2Stop(instanceID, region string) error {

	sess := common.GetAWSSession(region)
	ec2Svc := ec2.New(sess)

	input := &ec2.StopInstancesInput{
		InstanceIds: []*string{
			aws.String(instanceID),
		},
	}
	result, err := ec2Svc.StopInstances(input)
	if err != nil {
		return cerrors.Error{
			ErrorCode: cerrors.ErrorTypeChaosInject,
			Reason:    fmt.Sprintf("failed to stop EC2 instance: %v", common.CheckAWSError(err).Error()),
			Target:    fmt.Sprintf("{EC2 Instance ID: %v, Region: %v}", instanceID, region),
		}
	}

	log.InfoWithValues("Stopping EC2 instance:", logrus.Fields{
		"CurrentState":  *result.StoppingInstances[0].CurrentState.Name,
		"PreviousState": *result.StoppingInstances[0].PreviousState.Name,
		"InstanceId":    *result.StoppingInstances[0].InstanceId,
	})

	return nil
}

// EC2Start brings a stopped machine back, the abort path restores every
// instance it escalated against
func EC2Start(instanceID, region string) error {

	sess := common.GetAWSSession(region)
	ec2Svc := ec2.New(sess)

	input := &ec2.StartInstancesInput{
		InstanceIds: []*string{
			aws.String(instanceID),
		},
	}

	result, err := ec2Svc.StartInstances(input)
	if err != nil {
		return cerrors.Error{
			ErrorCode: cerrors.ErrorTypeChaosRevert,
			Reason:    fmt.Sprintf("failed to start EC2 instance: %v", common.CheckAWSError(err).Error()),
			Target:    fmt.Sprintf("{EC2 Instance ID: %v, Region: %v}", instanceID, region),
		}
	}

	log.InfoWithValues("Starting EC2 instance:", logrus.Fields{
		"CurrentState":  *result.StartingInstances[0].CurrentState.Name,
		"PreviousState": *result.StartingInstances[0].PreviousState.Name,
		"InstanceId":    *result.StartingInstances[0].InstanceId,
	})

	return nil
}

// WaitForEC2Down waits until the escalated instance reaches stopped state
func WaitForEC2Down(timeout, delay int, region, instanceID string) error {

	log.Info("[Status]: Checking EC2 instance status")
	return retry.
		Times(uint(timeout / delay)).
		Wait(time.Duration(delay) * time.Second).
		Try(func(attempt uint) error {

			instanceState, err := GetEC2InstanceStatus(instanceID, region)
			if err != nil {
				return stacktrace.Propagate(err, "failed to get the instance status")
			}
			if instanceState != "stopped" {
				log.Infof("The instance state is %v", instanceState)
				return cerrors.Error{
					ErrorCode: cerrors.ErrorTypeChaosInject,
					Reason:    "instance is not in stopped state",
					Target:    fmt.Sprintf("{EC2 Instance ID: %v, Region: %v}", instanceID, region),
				}
			}
			log.Infof("The instance state is %v", instanceState)
			return nil
		})
}

// WaitForEC2Up waits until a restored instance reaches running state
func WaitForEC2Up(timeout, delay int, region, instanceID string) error {

	log.Info("[Status]: Checking EC2 instance status")
	return retry.
		Times(uint(timeout / delay)).
		Wait(time.Duration(delay) * time.Second).
		Try(func(attempt uint) error {

			instanceState, err := GetEC2InstanceStatus(instanceID, region)
			if err != nil {
				return stacktrace.Propagate(err, "failed to get the instance status")
			}
			if instanceState != "running" {
				log.Infof("The instance state is %v", instanceState)
				return cerrors.Error{
					ErrorCode: cerrors.ErrorTypeChaosInject,
					Reason:    "instance is not in running state within timeout",
					Target:    fmt.Sprintf("{EC2 Instance ID: %v, Region: %v}", instanceID, region),
				}
			}
			log.Infof("The instance state is %v", instanceState)
			return nil
		})

}
