package shared

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ParseAMISpecs", func() {
	It("splits USER@AMI_ID tokens on the first @", func() {
		specs, err := ParseAMISpecs([]string{"centos@ami-123", "fedora@ami-456"}, "ec2-user")
		Expect(err).NotTo(HaveOccurred())
		Expect(specs).To(Equal([]AMISpec{
			{User: "centos", AMIID: "ami-123"},
			{User: "fedora", AMIID: "ami-456"},
		}))
	})

	It("applies the default user exactly when a token has no @", func() {
		specs, err := ParseAMISpecs([]string{"ami-123", "centos@ami-456"}, "ec2-user")
		Expect(err).NotTo(HaveOccurred())
		Expect(specs[0]).To(Equal(AMISpec{User: "ec2-user", AMIID: "ami-123"}))
		Expect(specs[1]).To(Equal(AMISpec{User: "centos", AMIID: "ami-456"}))
	})

	It("rejects a token with an empty AMI id", func() {
		_, err := ParseAMISpecs([]string{"centos@"}, "ec2-user")
		Expect(err).To(MatchError(ContainSubstring("missing AMI id")))
	})

	It("rejects a token with an empty user", func() {
		_, err := ParseAMISpecs([]string{"@ami-123"}, "ec2-user")
		Expect(err).To(MatchError(ContainSubstring("missing user")))
	})

	It("rejects an empty token", func() {
		_, err := ParseAMISpecs([]string{""}, "ec2-user")
		Expect(err).To(HaveOccurred())
	})
})
