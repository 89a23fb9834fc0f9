package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/distrotools/rpmcompare/pkg/aws"
	"github.com/distrotools/rpmcompare/pkg/logger"
	"github.com/distrotools/rpmcompare/shared"
)

const version = "1.0.0"

var (
	region       string
	instanceType string
	defaultUser  string
	verbose      bool
	debug        bool
	interactive  bool
	waitTimeout  time.Duration
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rpmcompare VPC_ID USER@AMI_ID...",
		Short: "Compare the available RPMs across Linux distro AMIs",
		Long: `rpmcompare creates one temporary EC2 instance per given AMI, queries the
RPM provides list on each over SSH and writes one file per image with the
available package names. Every AWS resource it creates is removed on exit.

The AMI ids and the EC2 instance type must match (HVM or PV).`,
		Args:          cobra.MinimumNArgs(2),
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}

	cmd.Flags().StringVar(&region, "region", "eu-west-1", "AWS region to use")
	cmd.Flags().StringVar(&instanceType, "type", "t2.micro", "EC2 instance type")
	cmd.Flags().StringVar(&defaultUser, "defaultuser", "ec2-user", "Default user to use for USER@AMI_ID")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "Verbose logging")
	cmd.Flags().BoolVar(&debug, "debug", false, "Debug logging")
	cmd.Flags().BoolVar(&interactive, "interactive", false,
		"Dump SSH key and IPs and wait before removing EC2 instances")
	cmd.Flags().DurationVar(&waitTimeout, "timeout", aws.DefaultWaitTimeout,
		"How long to wait for instances to reach the running state")

	return cmd
}

func run(_ *cobra.Command, args []string) error {
	if debug {
		logger.SetLevel(log.DebugLevel)
	} else if verbose {
		logger.SetLevel(log.InfoLevel)
	}

	specs, err := shared.ParseAMISpecs(args[1:], defaultUser)
	if err != nil {
		return err
	}

	// An interrupt cancels the run; the deferred Decommission then tears
	// the environment down after the run has stopped, so teardown never
	// races a still-launching instance.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client, err := aws.AddClient(region)
	if err != nil {
		return err
	}

	env, err := aws.NewEnvironment(client, args[0], interactive)
	if err != nil {
		return err
	}
	env.WaitTimeout = waitTimeout
	defer env.Decommission()

	sshCfg, err := shared.NewSSHConfig(env.KeyMaterial)
	if err != nil {
		return err
	}

	err = shared.GenerateProvidesLists(ctx, env, specs, instanceType, ".", sshCfg.RunCommandOnNode)
	if errors.Is(err, context.Canceled) {
		// interrupt is swallowed: tear down and exit 0
		return nil
	}

	return err
}

func main() {
	// AWS credentials and region overrides may live in a local .env file.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		shared.LogLevel("error", "%v", err)
		os.Exit(1)
	}
}
