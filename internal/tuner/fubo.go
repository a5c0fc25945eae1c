package tuner

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/jmylchreest/recast/internal/config"
	"github.com/jmylchreest/recast/internal/pool"
)

// FuboAppID is the Roku channel ID of the Fubo app.
const FuboAppID = "43465"

// FuboPlugin navigates Fubo's guide to a channel identified by its row
// position. Fubo has no deep links for live channels; the only way to a
// channel is walking the guide list, so the channel descriptor carries
// a "list_position" (1-based row in the guide).
type FuboPlugin struct{}

// BuildSteps opens the guide (Left, Down, Select), walks down to the
// configured row, and selects it twice: once to focus the channel, once
// to start playback.
func (FuboPlugin) BuildSteps(receiver *pool.Receiver, channel config.Channel) ([]Step, error) {
	pos, err := intField(channel.PluginData, "list_position")
	if err != nil {
		return nil, err
	}
	if pos < 1 {
		return nil, fmt.Errorf("list_position must be >= 1, got %d", pos)
	}

	steps := []Step{
		{Wait: 4 * time.Second},
		{Key: "Left"},
		{Wait: 500 * time.Millisecond},
		{Key: "Down"},
		{Wait: 500 * time.Millisecond},
		{Key: "Select"},
		{Wait: 1700 * time.Millisecond},
	}
	for i := 1; i < pos; i++ {
		steps = append(steps, Step{Key: "Down"}, Step{Wait: 100 * time.Millisecond})
	}
	steps = append(steps,
		Step{Key: "Select"},
		Step{Wait: 700 * time.Millisecond},
		Step{Key: "Select"},
	)
	return steps, nil
}

// intField reads an integer from plugin data, tolerating the types the
// YAML and JSON decoders produce.
func intField(data map[string]any, key string) (int, error) {
	v, ok := data[key]
	if !ok {
		return 0, fmt.Errorf("plugin data missing %q", key)
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("%q must be an integer, got %v", key, v)
		}
		return int(n), nil
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, fmt.Errorf("%q must be an integer, got %q", key, n)
		}
		return i, nil
	}
	return 0, fmt.Errorf("%q must be an integer, got %T", key, v)
}
