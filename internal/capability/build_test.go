package capability_test

import (
	"testing"

	"github.com/autocoder/kernel/internal/capability"
	"github.com/autocoder/kernel/internal/telemetry"
	"github.com/autocoder/kernel/pkg/models"
)

func TestBuild_DefaultsKernelTripleWhenUnconfigured(t *testing.T) {
	triple, extras, err := capability.Build("c", nil, nil, telemetry.NewRegistry())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(extras) != 0 {
		t.Fatalf("Build() extras = %v, want none", extras)
	}
	for i, want := range []int{10, 20, 90} {
		if triple[i] == nil || triple[i].Tier() != want {
			t.Fatalf("triple[%d].Tier() = %v, want %d", i, triple[i], want)
		}
	}
}

func TestBuild_RejectsStateCapabilityWithoutAdapter(t *testing.T) {
	_, _, err := capability.Build("c", []models.CapabilityConfig{{Name: "StateCapability", Tier: 30}}, nil, telemetry.NewRegistry())
	if err == nil {
		t.Fatal("Build() with StateCapability and nil adapter succeeded, want error")
	}
}

func TestBuild_RejectsUnknownCapability(t *testing.T) {
	_, _, err := capability.Build("c", []models.CapabilityConfig{{Name: "DoesNotExist"}}, nil, telemetry.NewRegistry())
	if err == nil {
		t.Fatal("Build() with an unknown capability name succeeded, want error")
	}
}
