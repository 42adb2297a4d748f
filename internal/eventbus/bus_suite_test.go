package eventbus_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestEventbus(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Eventbus Suite")
}
