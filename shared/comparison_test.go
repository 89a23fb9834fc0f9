package shared

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	awssdk "github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/aws/aws-sdk-go/service/ec2/ec2iface"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/distrotools/rpmcompare/pkg/aws"
)

// stubEC2 serves the minimal happy-path EC2 responses a full run needs.
type stubEC2 struct {
	ec2iface.EC2API

	onRunInstances func()
	terminatedIDs  []string
}

func (s *stubEC2) CreateKeyPair(in *ec2.CreateKeyPairInput) (*ec2.CreateKeyPairOutput, error) {
	return &ec2.CreateKeyPairOutput{
		KeyName:     in.KeyName,
		KeyMaterial: awssdk.String("material"),
	}, nil
}

func (s *stubEC2) CreateSecurityGroup(*ec2.CreateSecurityGroupInput) (*ec2.CreateSecurityGroupOutput, error) {
	return &ec2.CreateSecurityGroupOutput{GroupId: awssdk.String("sg-1")}, nil
}

func (s *stubEC2) AuthorizeSecurityGroupIngress(
	*ec2.AuthorizeSecurityGroupIngressInput,
) (*ec2.AuthorizeSecurityGroupIngressOutput, error) {
	return &ec2.AuthorizeSecurityGroupIngressOutput{}, nil
}

func (s *stubEC2) DescribeSubnets(*ec2.DescribeSubnetsInput) (*ec2.DescribeSubnetsOutput, error) {
	return &ec2.DescribeSubnetsOutput{
		Subnets: []*ec2.Subnet{{SubnetId: awssdk.String("subnet-1")}},
	}, nil
}

func (s *stubEC2) RunInstances(in *ec2.RunInstancesInput) (*ec2.Reservation, error) {
	if s.onRunInstances != nil {
		s.onRunInstances()
	}

	return &ec2.Reservation{
		Instances: []*ec2.Instance{
			{InstanceId: awssdk.String("i-" + awssdk.StringValue(in.ImageId))},
		},
	}, nil
}

func (s *stubEC2) TerminateInstances(in *ec2.TerminateInstancesInput) (*ec2.TerminateInstancesOutput, error) {
	s.terminatedIDs = append(s.terminatedIDs, awssdk.StringValueSlice(in.InstanceIds)...)

	return &ec2.TerminateInstancesOutput{}, nil
}

func (s *stubEC2) DeleteSecurityGroup(*ec2.DeleteSecurityGroupInput) (*ec2.DeleteSecurityGroupOutput, error) {
	return &ec2.DeleteSecurityGroupOutput{}, nil
}

func (s *stubEC2) DeleteKeyPair(*ec2.DeleteKeyPairInput) (*ec2.DeleteKeyPairOutput, error) {
	return &ec2.DeleteKeyPairOutput{}, nil
}

func (s *stubEC2) DescribeImages(in *ec2.DescribeImagesInput) (*ec2.DescribeImagesOutput, error) {
	amiID := awssdk.StringValue(in.ImageIds[0])

	return &ec2.DescribeImagesOutput{
		Images: []*ec2.Image{
			{
				ImageId:     in.ImageIds[0],
				Name:        awssdk.String("name-" + amiID),
				Description: awssdk.String("desc-" + amiID),
			},
		},
	}, nil
}

func (s *stubEC2) DescribeInstances(in *ec2.DescribeInstancesInput) (*ec2.DescribeInstancesOutput, error) {
	instances := make([]*ec2.Instance, 0, len(in.InstanceIds))
	for i, id := range in.InstanceIds {
		state := ec2.InstanceStateNameRunning
		for _, terminated := range s.terminatedIDs {
			if terminated == awssdk.StringValue(id) {
				state = ec2.InstanceStateNameTerminated
			}
		}

		instances = append(instances, &ec2.Instance{
			InstanceId:      id,
			State:           &ec2.InstanceState{Name: awssdk.String(state)},
			PublicIpAddress: awssdk.String(fmt.Sprintf("203.0.113.%d", i+1)),
		})
	}

	return &ec2.DescribeInstancesOutput{
		Reservations: []*ec2.Reservation{{Instances: instances}},
	}, nil
}

var _ = Describe("GenerateProvidesLists", func() {
	It("writes one file per responsive host and none for empty results", func() {
		dir := GinkgoT().TempDir()

		env, err := aws.NewEnvironment(aws.NewClientWithAPI(&stubEC2{}), "vpc-1", false)
		Expect(err).NotTo(HaveOccurred())

		specs := []AMISpec{
			{User: "ec2-user", AMIID: "ami-1"},
			{User: "centos", AMIID: "ami-2"},
		}

		run := func(cmd, user, ip string) (string, error) {
			if cmd == installYumUtilsCmd {
				return "", nil
			}
			// the second host answers with an empty provides list
			if ip == "203.0.113.2" {
				return "", nil
			}

			return "bash\nglibc\n", nil
		}

		Expect(GenerateProvidesLists(context.Background(), env, specs, "t2.micro", dir, run)).To(Succeed())

		content, err := os.ReadFile(filepath.Join(dir, "ami-1_name-ami-1_desc-ami-1.txt"))
		Expect(err).NotTo(HaveOccurred())
		Expect(string(content)).To(Equal("bash\nglibc\n"))

		_, err = os.Stat(filepath.Join(dir, "ami-2_name-ami-2_desc-ami-2.txt"))
		Expect(os.IsNotExist(err)).To(BeTrue())
	})

	It("stops launching on cancellation so teardown covers every launched instance", func() {
		dir := GinkgoT().TempDir()

		ctx, cancel := context.WithCancel(context.Background())
		stub := &stubEC2{onRunInstances: cancel}

		env, err := aws.NewEnvironment(aws.NewClientWithAPI(stub), "vpc-1", false)
		Expect(err).NotTo(HaveOccurred())

		specs := []AMISpec{
			{User: "ec2-user", AMIID: "ami-1"},
			{User: "centos", AMIID: "ami-2"},
		}
		run := func(cmd, user, ip string) (string, error) { return "bash\n", nil }

		err = GenerateProvidesLists(ctx, env, specs, "t2.micro", dir, run)
		Expect(err).To(MatchError(context.Canceled))
		Expect(env.Instances).To(HaveLen(1))

		// the caller tears down after the run has stopped; every launched
		// instance is known to it
		env.Decommission()
		Expect(stub.terminatedIDs).To(Equal([]string{"i-ami-1"}))

		entries, err := os.ReadDir(dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(BeEmpty())
	})
})
