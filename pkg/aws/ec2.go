package aws

import (
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/ec2"
)

// InstanceStatus is the subset of instance state this tool polls on.
type InstanceStatus struct {
	State    string
	PublicIP string
}

func (c *Client) CreateKeyPair(name string) (string, error) {
	out, err := c.ec2.CreateKeyPair(&ec2.CreateKeyPairInput{
		KeyName: aws.String(name),
	})
	if err != nil {
		return "", wrapProviderErr("error creating key pair", err)
	}

	return aws.StringValue(out.KeyMaterial), nil
}

func (c *Client) DeleteKeyPair(name string) error {
	_, err := c.ec2.DeleteKeyPair(&ec2.DeleteKeyPairInput{
		KeyName: aws.String(name),
	})
	if err != nil {
		return wrapProviderErr("error deleting key pair", err)
	}

	return nil
}

// CreateSecurityGroup creates a temporary security group in the VPC and
// returns the group id.
func (c *Client) CreateSecurityGroup(name, vpcID string) (string, error) {
	out, err := c.ec2.CreateSecurityGroup(&ec2.CreateSecurityGroupInput{
		GroupName:   aws.String(name),
		Description: aws.String("Temporary Security Group"),
		VpcId:       aws.String(vpcID),
	})
	if err != nil {
		return "", wrapProviderErr("error creating security group", err)
	}

	return aws.StringValue(out.GroupId), nil
}

// AuthorizeSSHIngress opens tcp/22 from anywhere on the group.
func (c *Client) AuthorizeSSHIngress(groupID string) error {
	_, err := c.ec2.AuthorizeSecurityGroupIngress(&ec2.AuthorizeSecurityGroupIngressInput{
		GroupId:    aws.String(groupID),
		IpProtocol: aws.String("tcp"),
		FromPort:   aws.Int64(22),
		ToPort:     aws.Int64(22),
		CidrIp:     aws.String("0.0.0.0/0"),
	})
	if err != nil {
		return wrapProviderErr("error authorizing ssh ingress", err)
	}

	return nil
}

func (c *Client) DeleteSecurityGroup(groupID string) error {
	_, err := c.ec2.DeleteSecurityGroup(&ec2.DeleteSecurityGroupInput{
		GroupId: aws.String(groupID),
	})
	if err != nil {
		return wrapProviderErr("error deleting security group", err)
	}

	return nil
}

// FirstSubnet returns the id of the first subnet found in the VPC.
func (c *Client) FirstSubnet(vpcID string) (string, error) {
	out, err := c.ec2.DescribeSubnets(&ec2.DescribeSubnetsInput{
		Filters: []*ec2.Filter{
			{
				Name:   aws.String("vpc-id"),
				Values: aws.StringSlice([]string{vpcID}),
			},
		},
	})
	if err != nil {
		return "", wrapProviderErr("error describing subnets", err)
	}

	if len(out.Subnets) == 0 {
		return "", fmt.Errorf("no subnets found in vpc %s", vpcID)
	}

	return aws.StringValue(out.Subnets[0].SubnetId), nil
}

func (c *Client) RunInstance(amiID, instanceType, keyName, groupID, subnetID, nameTag string) (string, error) {
	input := &ec2.RunInstancesInput{
		ImageId:      aws.String(amiID),
		InstanceType: aws.String(instanceType),
		MinCount:     aws.Int64(1),
		MaxCount:     aws.Int64(1),
		KeyName:      aws.String(keyName),
		NetworkInterfaces: []*ec2.InstanceNetworkInterfaceSpecification{
			{
				AssociatePublicIpAddress: aws.Bool(true),
				DeviceIndex:              aws.Int64(0),
				SubnetId:                 aws.String(subnetID),
				Groups:                   aws.StringSlice([]string{groupID}),
			},
		},
		TagSpecifications: []*ec2.TagSpecification{
			{
				ResourceType: aws.String("instance"),
				Tags: []*ec2.Tag{
					{
						Key:   aws.String("Name"),
						Value: aws.String(nameTag),
					},
				},
			},
		},
	}

	reservation, err := c.ec2.RunInstances(input)
	if err != nil {
		return "", wrapProviderErr("error running instance", err)
	}

	if len(reservation.Instances) == 0 || reservation.Instances[0].InstanceId == nil {
		return "", errors.New("no instance ID found in reservation")
	}

	return aws.StringValue(reservation.Instances[0].InstanceId), nil
}

// ImageInfo resolves an AMI's name and description. A deregistered or
// otherwise unknown image yields empty strings rather than an error so a
// run can still produce output for its other images.
func (c *Client) ImageInfo(amiID string) (name, description string, err error) {
	out, err := c.ec2.DescribeImages(&ec2.DescribeImagesInput{
		ImageIds: aws.StringSlice([]string{amiID}),
	})
	if err != nil {
		return "", "", wrapProviderErr("error describing image", err)
	}

	if len(out.Images) == 0 {
		return "", "", nil
	}

	return aws.StringValue(out.Images[0].Name), aws.StringValue(out.Images[0].Description), nil
}

// InstanceStatuses fetches the current state and public IP for the given
// instance ids.
func (c *Client) InstanceStatuses(ids []string) (map[string]InstanceStatus, error) {
	out, err := c.ec2.DescribeInstances(&ec2.DescribeInstancesInput{
		InstanceIds: aws.StringSlice(ids),
	})
	if err != nil {
		return nil, wrapProviderErr("error describing instances", err)
	}

	statuses := make(map[string]InstanceStatus, len(ids))
	for _, r := range out.Reservations {
		for _, i := range r.Instances {
			if i.InstanceId == nil || i.State == nil {
				continue
			}
			statuses[aws.StringValue(i.InstanceId)] = InstanceStatus{
				State:    aws.StringValue(i.State.Name),
				PublicIP: aws.StringValue(i.PublicIpAddress),
			}
		}
	}

	return statuses, nil
}

func (c *Client) TerminateInstances(ids []string) error {
	_, err := c.ec2.TerminateInstances(&ec2.TerminateInstancesInput{
		InstanceIds: aws.StringSlice(ids),
	})
	if err != nil {
		return wrapProviderErr("error terminating instances", err)
	}

	return nil
}

// wrapProviderErr surfaces the provider's error code and message alongside
// the failed operation.
func wrapProviderErr(op string, err error) error {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		return fmt.Errorf("%s: %s: %s: %w", op, aerr.Code(), aerr.Message(), err)
	}

	return fmt.Errorf("%s: %w", op, err)
}
