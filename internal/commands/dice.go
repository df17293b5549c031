package commands

import (
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

const (
	maxDice  = 100
	maxSides = 1000
)

var (
	errDiceFormat = errors.New("invalid dice notation")
	errDiceBounds = errors.New("dice out of bounds")

	diceRE = regexp.MustCompile(`^\s*(\d+)[dD](\d+)(?:\+(\d+))?\s*$`)
)

// UtilityCommands defines the general purpose slash commands.
var UtilityCommands = []*discordgo.ApplicationCommand{
	{
		Name:        "roll",
		Description: "Roll dice: XdY or XdY+Z (e.g., 2d6+3)",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "notation",
				Description: "Dice notation such as 2d6+1",
				Required:    true,
			},
		},
	},
}

// DiceRoll is the outcome of one roll.
type DiceRoll struct {
	Notation string
	Rolls    []int
	Bonus    int
	Total    int
}

// String formats the roll as "🎲 2d6+1 = **8** (3 + 4 + 1)".
func (r DiceRoll) String() string {
	parts := make([]string, 0, len(r.Rolls)+1)
	for _, v := range r.Rolls {
		parts = append(parts, strconv.Itoa(v))
	}
	if r.Bonus != 0 {
		parts = append(parts, strconv.Itoa(r.Bonus))
	}
	return fmt.Sprintf("🎲 %s = **%d** (%s)", r.Notation, r.Total, strings.Join(parts, " + "))
}

// Dice rolls dice from a private random source.
type Dice struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewDice returns dice backed by src, or by a time seeded source when src
// is nil.
func NewDice(src rand.Source) *Dice {
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	return &Dice{rnd: rand.New(src)}
}

// Roll parses XdY[+Z] and rolls it. X must be 1..100 and Y 1..1000.
func (d *Dice) Roll(notation string) (DiceRoll, error) {
	m := diceRE.FindStringSubmatch(notation)
	if m == nil {
		return DiceRoll{}, errDiceFormat
	}
	x, errX := strconv.Atoi(m[1])
	y, errY := strconv.Atoi(m[2])
	z := 0
	if m[3] != "" {
		var err error
		if z, err = strconv.Atoi(m[3]); err != nil {
			return DiceRoll{}, errDiceBounds
		}
	}
	if errX != nil || errY != nil || x <= 0 || y <= 0 || x > maxDice || y > maxSides {
		return DiceRoll{}, errDiceBounds
	}

	r := DiceRoll{Notation: notation, Rolls: make([]int, x), Bonus: z, Total: z}
	d.mu.Lock()
	for i := range r.Rolls {
		r.Rolls[i] = d.rnd.Intn(y) + 1
		r.Total += r.Rolls[i]
	}
	d.mu.Unlock()
	return r, nil
}

func (h *Handler) handleRoll(s *discordgo.Session, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	notation := options(data.Options)["notation"].StringValue()
	roll, err := h.Dice.Roll(notation)
	switch {
	case errors.Is(err, errDiceBounds):
		respondEphemeral(s, i, "Dice out of bounds.")
		return
	case err != nil:
		respondEphemeral(s, i, "Use format `XdY` or `XdY+Z`, e.g. `2d6+1`.")
		return
	}
	respond(s, i, roll.String())
}
