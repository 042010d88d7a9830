package foreach_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestForeach(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Foreach Suite")
}
