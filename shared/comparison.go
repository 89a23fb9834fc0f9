package shared

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/service/ec2"

	"github.com/distrotools/rpmcompare/pkg/aws"
)

// GenerateProvidesLists drives a full comparison run against an already
// set-up environment: launch one instance per AMI spec, wait for all of
// them to run, gather the provides lists and write one file per instance
// into outDir. Hosts that returned nothing are logged and skipped.
// Canceling the context stops the run between steps; teardown stays with
// the caller so it never overlaps a still-mutating run.
func GenerateProvidesLists(ctx context.Context, env *aws.Environment, specs []AMISpec, instanceType, outDir string, run CommandRunner) error {
	for _, spec := range specs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := env.Launch(spec.AMIID, spec.User, instanceType); err != nil {
			return err
		}
	}

	if err := env.WaitForState(ctx, ec2.InstanceStateNameRunning); err != nil {
		return err
	}

	results := CollectProvides(ctx, env.Instances, run)
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, inst := range env.Instances {
		output := results[HostKey(inst)]
		fmt.Printf("Host %s is %s\n", inst.PublicIP, inst.ImageID)

		if strings.TrimSpace(output) == "" {
			LogLevel("error", "Could not gather RPM provides list from %s", inst.ID)
			continue
		}

		path, err := WriteProvidesFile(outDir, inst, output)
		if err != nil {
			return err
		}
		LogLevel("info", "Wrote result for %s from %s to %s", inst.ImageID, inst.ID, path)
	}

	return nil
}
