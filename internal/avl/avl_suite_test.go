package avl

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestAvl(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Oblivious AVL Suite")
}
