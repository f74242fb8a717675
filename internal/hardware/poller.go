package hardware

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"field-gateway/internal/model"
	"field-gateway/internal/parse"
)

// Submitter stores one record.
type Submitter interface {
	Submit(ctx context.Context, sub model.Submission) (int64, error)
}

// Poller reads the device on a fixed interval and feeds readings into the
// local store. Continuous sensors are stored at most once per sample
// interval; input events are stored on the transition to active.
type Poller struct {
	device         Device
	sink           Submitter
	name           string
	interval       time.Duration
	sampleInterval time.Duration

	beepOnPress    bool
	lcdTemperature bool

	lastSample time.Time
	wasActive  map[string]bool
}

// NewPoller creates a poller that labels its records with name.
func NewPoller(device Device, sink Submitter, name string, interval, sampleInterval time.Duration) *Poller {
	return &Poller{
		device:         device,
		sink:           sink,
		name:           name,
		interval:       interval,
		sampleInterval: sampleInterval,
		wasActive:      make(map[string]bool),
	}
}

// WithFeedback makes the poller beep on every new button press and show each
// sampled temperature on the LCD.
func (p *Poller) WithFeedback(beepOnPress, lcdTemperature bool) *Poller {
	p.beepOnPress = beepOnPress
	p.lcdTemperature = lcdTemperature
	return p
}

// Run polls until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	logrus.WithField("interval", p.interval).Info("Starting hardware poller")

	p.PollOnce(ctx)

	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logrus.Info("Hardware poller shutting down")
			return
		case <-timer.C:
			p.PollOnce(ctx)
			timer.Reset(p.interval)
		}
	}
}

// PollOnce performs a single poll and submits what is due. It returns the
// number of records submitted.
func (p *Poller) PollOnce(ctx context.Context) int {
	frame, err := p.device.Poll(ctx)
	if err != nil {
		logrus.WithError(err).Warn("Hardware poll failed")
		return 0
	}

	sampleDue := p.lastSample.IsZero() || frame.At.Sub(p.lastSample) >= p.sampleInterval
	submitted := 0
	sampled := false

	for _, r := range frame.Readings {
		var due bool
		switch r.Type {
		case model.TypeButton, model.TypeJoystick:
			due = r.Active && !p.wasActive[r.Type]
			p.wasActive[r.Type] = r.Active
		default:
			due = sampleDue && r.Active
			sampled = sampled || due
		}
		if !due {
			continue
		}
		p.feedback(ctx, r)

		sub := model.Submission{
			Type:    r.Type,
			Name:    p.name,
			Value:   r.Value,
			Unit:    r.Unit,
			Comment: r.Comment,
		}
		if _, err := p.sink.Submit(ctx, sub); err != nil {
			logrus.WithError(err).WithField("type", r.Type).Warn("Failed to store hardware reading")
			continue
		}
		submitted++
	}

	if sampled {
		p.lastSample = frame.At
	}
	return submitted
}

func (p *Poller) feedback(ctx context.Context, r parse.Reading) {
	var cmd parse.Command
	switch {
	case p.beepOnPress && r.Type == model.TypeButton:
		cmd = parse.Command{Kind: parse.CommandBeep}
	case p.lcdTemperature && r.Type == model.TypeTemperature:
		cmd = parse.Command{Kind: parse.CommandLCD, Arg: fmt.Sprintf("Temp:%.1fC", r.Value)}
	default:
		return
	}
	if _, err := p.device.Actuate(ctx, cmd); err != nil {
		logrus.WithError(err).WithField("command", cmd.String()).Warn("Local feedback failed")
	}
}
