package aws

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/google/uuid"

	"github.com/distrotools/rpmcompare/pkg/logger"
)

const (
	defaultWaitDelay   = 10 * time.Second
	DefaultWaitTimeout = 300 * time.Second

	instanceNameTag = "rpmcompare"
)

var log = logger.AddLogger()

// Instance is one launched EC2 instance together with the image metadata
// its output file is named after.
type Instance struct {
	ID               string
	ImageID          string
	ImageName        string
	ImageDescription string
	User             string
	State            string
	PublicIP         string
}

// Environment owns every AWS resource a run creates: one key pair, one
// security group and the launched instances. Decommission reverses all of
// it, best-effort.
type Environment struct {
	client *Client

	VPCID           string
	KeyName         string
	KeyMaterial     string
	SecurityGroupID string
	SubnetID        string
	Instances       []*Instance

	Interactive bool
	WaitTimeout time.Duration

	// prompt streams, swapped out in tests.
	In  io.Reader
	Out io.Writer

	waitDelay time.Duration
	teardown  sync.Once
}

// NewEnvironment creates the ephemeral key pair and security group and picks
// the first subnet of the VPC. On failure it removes whatever it already
// created before returning the error.
func NewEnvironment(client *Client, vpcID string, interactive bool) (*Environment, error) {
	e := &Environment{
		client:      client,
		VPCID:       vpcID,
		Interactive: interactive,
		WaitTimeout: DefaultWaitTimeout,
		In:          os.Stdin,
		Out:         os.Stdout,
		waitDelay:   defaultWaitDelay,
	}

	name := environmentName()

	material, err := client.CreateKeyPair(name)
	if err != nil {
		return nil, err
	}
	e.KeyName = name
	e.KeyMaterial = material
	log.Infof("Created Key Pair %s", name)

	groupID, err := client.CreateSecurityGroup(name, vpcID)
	if err != nil {
		e.Decommission()
		return nil, err
	}
	// recorded before the ingress rule so a failed authorize still gets
	// the group cleaned up.
	e.SecurityGroupID = groupID
	log.Infof("Created Security Group %s", groupID)

	if err := client.AuthorizeSSHIngress(groupID); err != nil {
		e.Decommission()
		return nil, err
	}

	subnetID, err := client.FirstSubnet(vpcID)
	if err != nil {
		e.Decommission()
		return nil, err
	}
	e.SubnetID = subnetID

	return e, nil
}

// Launch starts one instance from the AMI and records it together with the
// resolved image name and description.
func (e *Environment) Launch(amiID, user, instanceType string) error {
	id, err := e.client.RunInstance(amiID, instanceType, e.KeyName, e.SecurityGroupID, e.SubnetID, instanceNameTag)
	if err != nil {
		return err
	}
	log.Infof("Created Instance %s for %s", id, amiID)

	name, description, err := e.client.ImageInfo(amiID)
	if err != nil {
		log.Warnf("could not resolve image metadata for %s: %v", amiID, err)
	}

	e.Instances = append(e.Instances, &Instance{
		ID:               id,
		ImageID:          amiID,
		ImageName:        name,
		ImageDescription: description,
		User:             user,
		State:            ec2.InstanceStateNamePending,
	})

	return nil
}

// WaitForState polls every instance that has not yet reached the target
// state, refreshing its state and public IP, until all are there, the
// environment's wait timeout elapses or the context is canceled.
func (e *Environment) WaitForState(ctx context.Context, target string) error {
	pending := make([]*Instance, len(e.Instances))
	copy(pending, e.Instances)
	if len(pending) == 0 {
		return nil
	}

	log.Infof("Waiting %s for %d instances to be %s", e.WaitTimeout, len(pending), target)

	deadline := time.Now().Add(e.WaitTimeout)
	for {
		statuses, err := e.client.InstanceStatuses(instanceIDs(pending))
		if err != nil {
			return err
		}

		var still []*Instance
		for _, inst := range pending {
			if status, ok := statuses[inst.ID]; ok {
				inst.State = status.State
				if status.PublicIP != "" {
					inst.PublicIP = status.PublicIP
				}
			}
			if inst.State != target {
				still = append(still, inst)
			}
		}
		pending = still

		if len(pending) == 0 {
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("could not reach %s state after waiting %s, still pending: %s",
				target, e.WaitTimeout, describeInstances(pending))
		}

		log.Infof("The following instances still have the wrong state: %s", describeInstances(pending))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.waitDelay):
		}
	}
}

// Decommission tears the environment down. It never gives up on a failed
// step: instances, security group and key pair each get their own attempt
// regardless of what failed before. Safe to call more than once.
func (e *Environment) Decommission() {
	e.teardown.Do(e.decommission)
}

func (e *Environment) decommission() {
	// SubnetID is set last during setup, so it doubles as the
	// setup-completed marker: no pause while unwinding a partial setup.
	if e.Interactive && e.KeyMaterial != "" && e.SubnetID != "" {
		e.promptBeforeTeardown()
	}

	log.Info("Removing environment")

	if len(e.Instances) > 0 {
		ids := instanceIDs(e.Instances)
		log.Infof("Terminating Instances %s", strings.Join(ids, ", "))
		if err := e.client.TerminateInstances(ids); err != nil {
			log.Errorf("terminating instances: %v", err)
		} else if err := e.WaitForState(context.Background(), ec2.InstanceStateNameTerminated); err != nil {
			log.Errorf("waiting for instances to terminate: %v", err)
		}
	}

	if e.SecurityGroupID != "" {
		if err := e.client.DeleteSecurityGroup(e.SecurityGroupID); err != nil {
			log.Errorf("deleting security group %s: %v", e.SecurityGroupID, err)
		} else {
			log.Info("Deleted Security Group")
		}
	}

	if e.KeyName != "" {
		if err := e.client.DeleteKeyPair(e.KeyName); err != nil {
			log.Errorf("deleting key pair %s: %v", e.KeyName, err)
		} else {
			log.Info("Deleted Key Pair")
		}
	}
}

func (e *Environment) promptBeforeTeardown() {
	fmt.Fprintf(e.Out, "\n\nSSH Key:\n%s\nInstances:\n", e.KeyMaterial)
	for _, inst := range e.Instances {
		fmt.Fprintf(e.Out, "\t%s@%s (%s)\n", inst.User, inst.PublicIP, inst.ImageID)
	}
	fmt.Fprint(e.Out, "You can explore those instances\nPress ENTER to continue and remove the environment...")

	reader := bufio.NewReader(e.In)
	_, _ = reader.ReadString('\n')
}

func instanceIDs(instances []*Instance) []string {
	ids := make([]string, 0, len(instances))
	for _, inst := range instances {
		ids = append(ids, inst.ID)
	}

	return ids
}

func describeInstances(instances []*Instance) string {
	parts := make([]string, 0, len(instances))
	for _, inst := range instances {
		parts = append(parts, inst.ID+" "+inst.State)
	}

	return strings.Join(parts, ", ")
}

// environmentName derives a unique name shared by the key pair and the
// security group. The uuid suffix keeps concurrent runs from the same
// user and host apart.
func environmentName() string {
	user := os.Getenv("USER")
	if user == "" {
		user = "unknown"
	}

	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}

	return fmt.Sprintf("%s-%s-%s-%s", instanceNameTag, user, host, uuid.NewString()[:8])
}
