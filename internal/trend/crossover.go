package trend

import "fmt"

// Direction is the kind of moving-average cross observed on a price update.
type Direction int

const (
	None Direction = iota
	GoldenCross    // Short average moved above the long one
	DeadCross      // Short average moved below the long one
)

// String returns the string representation of Direction
func (d Direction) String() string {
	switch d {
	case GoldenCross:
		return "GOLDEN_CROSS"
	case DeadCross:
		return "DEAD_CROSS"
	default:
		return "NONE"
	}
}

// Crossover tracks a short and a long simple moving average over the price
// series and reports when they cross. It is stateful and deterministic.
// Uses a ring buffer so Observe does not allocate.
type Crossover struct {
	shortPeriod int
	longPeriod  int

	// State (Ring Buffer)
	prices []float64
	head   int     // Current write position
	count  int     // Number of elements filled
	sum    float64 // Running sum for the long period

	primed    bool
	prevShort float64
	prevLong  float64
}

// NewCrossover creates a detector. shortPeriod must be below longPeriod.
func NewCrossover(shortPeriod, longPeriod int) (*Crossover, error) {
	if shortPeriod < 1 || shortPeriod >= longPeriod {
		return nil, fmt.Errorf("crossover: need 0 < short (%d) < long (%d)", shortPeriod, longPeriod)
	}
	return &Crossover{
		shortPeriod: shortPeriod,
		longPeriod:  longPeriod,
		prices:      make([]float64, longPeriod), // Fixed size allocation
	}, nil
}

// Observe feeds the next price and returns the cross it caused, if any.
func (c *Crossover) Observe(price float64) Direction {
	// If full, the head slot holds the oldest value
	if c.count == c.longPeriod {
		c.sum -= c.prices[c.head]
	}
	c.prices[c.head] = price
	c.sum += price
	c.head = (c.head + 1) % c.longPeriod
	if c.count < c.longPeriod {
		c.count++
	}

	if c.count < c.longPeriod {
		return None
	}

	currLong := c.sum / float64(c.longPeriod)
	currShort := c.shortAverage()

	dir := None
	if c.primed {
		switch {
		case c.prevShort <= c.prevLong && currShort > currLong:
			dir = GoldenCross
		case c.prevShort >= c.prevLong && currShort < currLong:
			dir = DeadCross
		}
	}

	c.primed = true
	c.prevShort = currShort
	c.prevLong = currLong
	return dir
}

// Averages returns the latest short and long averages once enough prices were seen.
func (c *Crossover) Averages() (short, long float64, ok bool) {
	return c.prevShort, c.prevLong, c.primed
}

// shortAverage walks back from the latest price.
func (c *Crossover) shortAverage() float64 {
	sum := 0.0
	idx := c.head
	for i := 0; i < c.shortPeriod; i++ {
		idx--
		if idx < 0 {
			idx = c.longPeriod - 1
		}
		sum += c.prices[idx]
	}
	return sum / float64(c.shortPeriod)
}

// State summarises a whole series.
type State struct {
	Short     float64   `json:"short_average"`
	Long      float64   `json:"long_average"`
	Ready     bool      `json:"ready"`      // Enough prices for both averages
	Last      Direction `json:"-"`          // Most recent cross in the series
	LastIndex int       `json:"last_index"` // Series index of Last, -1 when none
}

// Scan replays prices through a fresh detector.
func Scan(prices []float64, shortPeriod, longPeriod int) (State, error) {
	c, err := NewCrossover(shortPeriod, longPeriod)
	if err != nil {
		return State{}, err
	}
	st := State{LastIndex: -1}
	for i, p := range prices {
		if d := c.Observe(p); d != None {
			st.Last = d
			st.LastIndex = i
		}
	}
	st.Short, st.Long, st.Ready = c.Averages()
	return st, nil
}
