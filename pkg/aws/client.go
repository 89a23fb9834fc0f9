package aws

import (
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/aws/aws-sdk-go/service/ec2/ec2iface"
)

// Client wraps the EC2 API behind ec2iface so the environment lifecycle
// can run against a fake in tests.
type Client struct {
	ec2 ec2iface.EC2API
}

func AddClient(region string) (*Client, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(region),
	})
	if err != nil {
		return nil, fmt.Errorf("error creating AWS session: %w", err)
	}

	return &Client{ec2: ec2.New(sess)}, nil
}

// NewClientWithAPI builds a client around an existing EC2 API implementation.
func NewClientWithAPI(api ec2iface.EC2API) *Client {
	return &Client{ec2: api}
}
