package audio

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

const maxVolume = 150

var percentRe = regexp.MustCompile(`(\d+)\s*%`)

type sinkInput struct {
	ID      int
	Volume  int
	AppName string
}

type fade struct {
	id   int
	from int
	to   int
}

// mixer is the slice of pactl the Ducker needs.
type mixer interface {
	SinkInputs(ctx context.Context) ([]sinkInput, error)
	SetVolume(ctx context.Context, id, percent int) error
}

// Ducker lowers every other application's playback while we speak and
// restores it afterwards. Streams whose application.name is in selfNames
// are left alone.
type Ducker struct {
	mixer     mixer
	selfNames []string
	minVolume int

	mu       sync.Mutex
	active   bool
	original map[int]int
}

func NewDucker(selfNames []string, minVolume int) *Ducker {
	return newDucker(pactl{}, selfNames, minVolume)
}

func newDucker(m mixer, selfNames []string, minVolume int) *Ducker {
	return &Ducker{
		mixer:     m,
		selfNames: append([]string(nil), selfNames...),
		minVolume: clampVolume(minVolume),
		original:  make(map[int]int),
	}
}

// Duck fades foreign streams to factor of their volume, never below the
// minimum. A second call before Unduck is a no-op.
func (d *Ducker) Duck(ctx context.Context, factor float64, duration time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.active {
		return nil
	}

	streams, err := d.mixer.SinkInputs(ctx)
	if err != nil {
		return fmt.Errorf("list sink inputs: %w", err)
	}

	d.original = make(map[int]int)
	var fades []fade

	for _, s := range d.foreign(streams) {
		target := math.Max(float64(s.Volume)*factor, float64(d.minVolume))
		d.original[s.ID] = s.Volume
		fades = append(fades, fade{id: s.ID, from: s.Volume, to: clampVolume(int(math.Round(target)))})
	}

	if err := d.apply(ctx, fades, duration); err != nil {
		return err
	}

	d.active = true
	return nil
}

// Unduck fades foreign streams back to the volumes saved by Duck.
// Streams that appeared after Duck are not touched.
func (d *Ducker) Unduck(ctx context.Context, duration time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.active {
		return nil
	}

	streams, err := d.mixer.SinkInputs(ctx)
	if err != nil {
		return fmt.Errorf("list sink inputs: %w", err)
	}

	var fades []fade
	for _, s := range d.foreign(streams) {
		orig, ok := d.original[s.ID]
		if !ok {
			continue
		}
		fades = append(fades, fade{id: s.ID, from: s.Volume, to: orig})
	}

	if err := d.apply(ctx, fades, duration); err != nil {
		return err
	}

	d.original = make(map[int]int)
	d.active = false
	return nil
}

func (d *Ducker) foreign(streams []sinkInput) []sinkInput {
	var out []sinkInput
	for _, s := range streams {
		self := false
		for _, name := range d.selfNames {
			if s.AppName == name {
				self = true
				break
			}
		}
		if !self {
			out = append(out, s)
		}
	}
	return out
}

// apply steps every fade in parallel over duration, 10ms per step.
func (d *Ducker) apply(ctx context.Context, fades []fade, duration time.Duration) error {
	if len(fades) == 0 {
		return nil
	}

	steps := int(duration / (10 * time.Millisecond))
	if steps < 1 {
		steps = 1
	}
	stepDur := duration / time.Duration(steps)

	for i := 1; i <= steps; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		frac := float64(i) / float64(steps)
		for _, f := range fades {
			v := int(math.Round(float64(f.from) + float64(f.to-f.from)*frac))
			if err := d.mixer.SetVolume(ctx, f.id, v); err != nil {
				return fmt.Errorf("set volume id=%d: %w", f.id, err)
			}
		}

		if i < steps && stepDur > 0 {
			time.Sleep(stepDur)
		}
	}

	return nil
}

func clampVolume(v int) int {
	return min(max(v, 0), maxVolume)
}

type pactl struct{}

func (pactl) SinkInputs(ctx context.Context) ([]sinkInput, error) {
	out, err := exec.CommandContext(ctx, "pactl", "list", "sink-inputs").Output()
	if err != nil {
		return nil, fmt.Errorf("pactl list sink-inputs: %w", err)
	}
	return parseSinkInputs(string(out)), nil
}

func (pactl) SetVolume(ctx context.Context, id, percent int) error {
	arg := fmt.Sprintf("%d%%", clampVolume(percent))
	return exec.CommandContext(ctx, "pactl", "set-sink-input-volume", strconv.Itoa(id), arg).Run()
}

// parseSinkInputs reads the first volume percentage and application.name
// out of each "Sink Input #N" block.
func parseSinkInputs(text string) []sinkInput {
	blocks := strings.Split(text, "Sink Input #")
	if len(blocks) <= 1 {
		return nil
	}

	var res []sinkInput
	for _, block := range blocks[1:] {
		header, body, ok := strings.Cut(block, "\n")
		if !ok {
			continue
		}

		id, err := strconv.Atoi(strings.TrimSpace(header))
		if err != nil {
			continue
		}

		s := sinkInput{ID: id}
		for _, line := range strings.Split(body, "\n") {
			line = strings.TrimSpace(line)

			if strings.HasPrefix(line, "Volume:") && s.Volume == 0 {
				if m := percentRe.FindStringSubmatch(line); len(m) >= 2 {
					if v, err := strconv.Atoi(m[1]); err == nil {
						s.Volume = v
					}
				}
			}

			if strings.HasPrefix(line, "application.name =") && s.AppName == "" {
				_, quoted, _ := strings.Cut(line, `"`)
				s.AppName, _, _ = strings.Cut(quoted, `"`)
			}
		}

		if s.Volume == 0 && s.AppName == "" {
			continue
		}
		res = append(res, s)
	}

	return res
}
