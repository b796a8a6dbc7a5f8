package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cochaviz/virtmcp/internal/vmerr"
)

func TestCreateOptionsValidate(t *testing.T) {
	valid := CreateOptions{Name: "alpha", OSType: "Ubuntu_64", MemoryMB: 2048, CPUs: 2, DiskSizeGB: 20, NetworkType: "nat"}
	assert.NoError(t, valid.Validate())

	cases := map[string]func(o *CreateOptions){
		"name":    func(o *CreateOptions) { o.Name = "  " },
		"os":      func(o *CreateOptions) { o.OSType = "" },
		"memory":  func(o *CreateOptions) { o.MemoryMB = 64 },
		"cpus":    func(o *CreateOptions) { o.CPUs = 33 },
		"disk":    func(o *CreateOptions) { o.DiskSizeGB = 0 },
		"network": func(o *CreateOptions) { o.NetworkType = "wifi" },
	}
	for name, mutate := range cases {
		o := valid
		mutate(&o)
		err := o.Validate()
		assert.Error(t, err, name)
		assert.Equal(t, vmerr.CodeValidation, vmerr.CodeOf(err), name)
	}
}

func TestCloneOptionsValidate(t *testing.T) {
	assert.NoError(t, CloneOptions{Source: "base", Name: "copy"}.Validate())
	assert.NoError(t, CloneOptions{Source: "base", Name: "copy", Mode: CloneLinked}.Validate())
	assert.Error(t, CloneOptions{Name: "copy"}.Validate())
	assert.Error(t, CloneOptions{Source: "base"}.Validate())
	assert.Error(t, CloneOptions{Source: "base", Name: "copy", Mode: "shallow"}.Validate())
}
