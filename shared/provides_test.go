package shared

import (
	"context"
	"errors"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/distrotools/rpmcompare/pkg/aws"
)

var _ = Describe("CollectProvides", func() {
	newInstances := func() []*aws.Instance {
		return []*aws.Instance{
			{ID: "i-1", ImageID: "ami-1", User: "ec2-user", PublicIP: "203.0.113.1"},
			{ID: "i-2", ImageID: "ami-2", User: "centos", PublicIP: "203.0.113.2"},
		}
	}

	It("aggregates results keyed by user@ip", func() {
		run := func(cmd, user, ip string) (string, error) {
			if cmd == installYumUtilsCmd {
				return "", nil
			}

			return "pkg-for-" + ip + "\n", nil
		}

		results := CollectProvides(context.Background(), newInstances(), run)

		Expect(results).To(HaveLen(2))
		Expect(results).To(HaveKeyWithValue("ec2-user@203.0.113.1", "pkg-for-203.0.113.1\n"))
		Expect(results).To(HaveKeyWithValue("centos@203.0.113.2", "pkg-for-203.0.113.2\n"))
	})

	It("installs yum-utils before querying the provides list", func() {
		var mu sync.Mutex
		order := map[string][]string{}
		run := func(cmd, user, ip string) (string, error) {
			mu.Lock()
			order[ip] = append(order[ip], cmd)
			mu.Unlock()

			return "out", nil
		}

		CollectProvides(context.Background(), newInstances(), run)

		for _, cmds := range order {
			Expect(cmds).To(Equal([]string{installYumUtilsCmd, queryProvidesCmd}))
		}
	})

	It("skips a host whose query fails without aborting the others", func() {
		run := func(cmd, user, ip string) (string, error) {
			if ip == "203.0.113.2" {
				return "", errors.New("connection refused")
			}

			return "bash\n", nil
		}

		results := CollectProvides(context.Background(), newInstances(), run)

		Expect(results).To(HaveLen(1))
		Expect(results).To(HaveKey("ec2-user@203.0.113.1"))
		Expect(results).NotTo(HaveKey("centos@203.0.113.2"))
	})

	It("returns without waiting for stuck hosts when the context is canceled", func() {
		block := make(chan struct{})
		defer close(block)
		run := func(cmd, user, ip string) (string, error) {
			<-block
			return "", errors.New("abandoned")
		}

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		results := CollectProvides(ctx, newInstances(), run)
		Expect(results).To(BeEmpty())
	})
})
