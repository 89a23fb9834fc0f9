package shared

import (
	"context"
	"strings"
	"sync"

	"github.com/distrotools/rpmcompare/pkg/aws"
)

// yum-utils ships repoquery; the second command reduces its output to a
// sorted, unique list of provided package names.
const (
	installYumUtilsCmd = "sudo yum -q -y install yum-utils"
	queryProvidesCmd   = `sudo repoquery --provides -a | cut -f 1 -d " " | sort -u`
)

// CommandRunner executes a shell command on a host and returns its stdout.
type CommandRunner func(cmd, user, ip string) (string, error)

type hostResult struct {
	key    string
	output string
}

// CollectProvides installs yum-utils and queries the RPM provides list on
// every instance concurrently. The result is keyed user@ip; hosts whose
// query failed are logged and left out so one broken image never aborts
// the whole run. Canceling the context stops collecting and returns what
// arrived so far; in-flight host commands are abandoned.
func CollectProvides(ctx context.Context, instances []*aws.Instance, run CommandRunner) map[string]string {
	resChan := make(chan hostResult, len(instances))
	var wg sync.WaitGroup

	for _, inst := range instances {
		wg.Add(1)
		go func(inst *aws.Instance) {
			defer wg.Done()

			output, err := queryProvides(inst, run)
			if err != nil {
				LogLevel("error", "gathering provides list from %s (%s): %v", inst.ID, inst.ImageID, err)
				return
			}

			resChan <- hostResult{key: HostKey(inst), output: output}
		}(inst)
	}

	go func() {
		wg.Wait()
		close(resChan)
	}()

	results := make(map[string]string, len(instances))
	for {
		select {
		case res, ok := <-resChan:
			if !ok {
				return results
			}
			results[res.key] = res.output
		case <-ctx.Done():
			return results
		}
	}
}

// HostKey is the user@ip key an instance's result is stored under.
func HostKey(inst *aws.Instance) string {
	return inst.User + "@" + inst.PublicIP
}

func queryProvides(inst *aws.Instance, run CommandRunner) (string, error) {
	out, err := run(installYumUtilsCmd, inst.User, inst.PublicIP)
	if err != nil {
		return "", err
	}
	LogLevel("debug", "yum-utils install on %s: %s", inst.PublicIP, strings.TrimSpace(out))

	return run(queryProvidesCmd, inst.User, inst.PublicIP)
}
