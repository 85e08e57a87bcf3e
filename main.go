package sgdma

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/slackhq/sgdma/config"
	"github.com/slackhq/sgdma/memory"
	"github.com/slackhq/sgdma/ring"
	"github.com/slackhq/sgdma/util"
	"go.yaml.in/yaml/v3"
)

const (
	DefaultSourceBase = 0x01000000
	DefaultTargetBase = 0x400000000
	DefaultTargetSize = 64 * 1024 * 1024
)

// Main builds the memory space, the engine and the sweeps described by c. With
// configTest the merged config is printed and validated but nothing is mapped.
func Main(c *config.C, configTest bool, buildVersion string, l *logrus.Logger) (*Control, error) {
	// Print the config if in test, the exit comes later
	if configTest {
		b, err := yaml.Marshal(c.Settings)
		if err != nil {
			return nil, err
		}

		// Print the final config
		l.Println(string(b))
	}

	err := configLogger(l, c)
	if err != nil {
		return nil, util.ContextualizeIfNeeded("Failed to configure the logger", err)
	}

	c.RegisterReloadCallback(func(c *config.C) {
		if !c.HasChanged("logging") {
			return
		}
		if err := configLogger(l, c); err != nil {
			l.WithError(err).Error("Failed to configure the logger")
		}
	})

	opts, err := optionsFromConfig(c)
	if err != nil {
		return nil, util.ContextualizeIfNeeded("Failed to read the transfer options", err)
	}
	if err := opts.validate(); err != nil {
		return nil, util.NewContextualError("Invalid transfer options", logrus.Fields{
			"packetLength": opts.PacketLength,
			"batchSize":    opts.BatchSize,
			"ringSpace":    fmt.Sprintf("0x%x", opts.RingSpaceSize),
		}, err)
	}

	orientation, err := ParseOrientation(c.GetString("memory.orientation", "write"))
	if err != nil {
		return nil, util.NewContextualError("Failed to read memory.orientation", nil, err)
	}

	anchor := memory.Region{
		Name: "anchor",
		Base: c.GetUint64("memory.source_base", DefaultSourceBase),
		Size: c.GetByteSize("memory.source_size", opts.BatchBytes()),
	}
	target := memory.Region{
		Name: "target",
		Base: c.GetUint64("memory.target_base", DefaultTargetBase),
		Size: opts.TargetSize,
	}
	for _, r := range []memory.Region{anchor, target} {
		if r.Size < opts.BatchBytes() {
			return nil, util.NewContextualError("Memory region is smaller than one batch", logrus.Fields{
				"region":     r.String(),
				"batchBytes": opts.BatchBytes(),
			}, nil)
		}
	}

	stats, err := startStats(l, c, buildVersion, configTest)
	if err != nil {
		return nil, util.ContextualizeIfNeeded("Failed to start stats emitter", err)
	}

	ctrl := &Control{
		l:          l,
		runRange:   c.GetBool("tests.range", true),
		runPattern: c.GetBool("tests.pattern", true),
		stats:      stats,
	}
	if configTest {
		return ctrl, nil
	}

	mem := memory.NewSpace()
	for _, r := range []memory.Region{anchor, target} {
		if err := mem.Map(r.Name, r.Base, r.Size); err != nil {
			mem.Close()
			return nil, util.NewContextualError("Failed to map memory region", logrus.Fields{"region": r.String()}, err)
		}
	}
	l.WithField("regions", mem.Regions()).Info("Memory mapped")

	sim := ring.NewSim(l, mem, ring.Options{
		CompletePerPoll:  c.GetInt("sim.complete_per_poll", ring.DefaultOptions.CompletePerPoll),
		ResetLatency:     c.GetInt("sim.reset_latency", ring.DefaultOptions.ResetLatency),
		AddressAlignment: c.GetUint64("sim.address_alignment", ring.DefaultOptions.AddressAlignment),
	})

	buffers := NewBuffers(orientation, anchor.Base, target.Base)
	engine, err := NewEngine(l, sim, mem, memory.NewTracker(l), buffers, opts)
	if err != nil {
		mem.Close()
		return nil, util.NewContextualError("Failed to create the transfer engine", nil, err)
	}

	ctrl.mem = mem
	ctrl.engine = engine
	return ctrl, nil
}

func optionsFromConfig(c *config.C) (Options, error) {
	d := DefaultOptions()

	poll, err := pollStrategyFromConfig(c)
	if err != nil {
		return d, err
	}

	return Options{
		PacketLength:     c.GetInt("transfer.packet_length", d.PacketLength),
		BatchSize:        c.GetInt("transfer.batch_size", d.BatchSize),
		ResetAttempts:    c.GetInt("reset.attempts", d.ResetAttempts),
		RingSpaceBase:    c.GetUint64("ring.space_base", d.RingSpaceBase),
		RingSpaceSize:    c.GetByteSize("ring.space_size", d.RingSpaceSize),
		RingAlignment:    c.GetInt("ring.alignment", d.RingAlignment),
		HardwareCoherent: c.GetBool("coherency.hardware_coherent", false),
		TargetSize:       c.GetByteSize("memory.target_size", DefaultTargetSize),
		Poll:             poll,
	}, nil
}

func pollStrategyFromConfig(c *config.C) (PollStrategy, error) {
	switch s := strings.ToLower(c.GetString("poll.strategy", "spin")); s {
	case "spin":
		return SpinPoll{}, nil
	case "backoff":
		b := BackoffPoll{
			Min: c.GetDuration("poll.backoff.min", time.Microsecond),
			Max: c.GetDuration("poll.backoff.max", time.Millisecond),
		}
		if b.Min <= 0 || b.Max < b.Min {
			return nil, fmt.Errorf("poll.backoff.min %s and poll.backoff.max %s must satisfy 0 < min <= max", b.Min, b.Max)
		}
		return b, nil
	case "bounded":
		n := c.GetInt("poll.max_attempts", 1000000)
		if n <= 0 {
			return nil, fmt.Errorf("poll.max_attempts must be positive, got %d", n)
		}
		return BoundedPoll{Attempts: n}, nil
	default:
		return nil, fmt.Errorf("unknown poll strategy `%s`. possible strategies: %s", s, []string{"spin", "backoff", "bounded"})
	}
}
