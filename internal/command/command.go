// Package command is the textual command surface: "/verb arg1 arg2 ...".
// Every command needs a logged-in actor; engines do the permission checks
// and the dispatcher turns their errors into user-safe replies.
package command

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"strings"

	"rpworld/backend/internal/apperr"
	"rpworld/backend/internal/economy"
	"rpworld/backend/internal/faction"
	"rpworld/backend/internal/job"
	"rpworld/backend/internal/localization"
	"rpworld/backend/internal/models"
	"rpworld/backend/internal/moderation"
	"rpworld/backend/internal/permission"
	"rpworld/backend/internal/property"
	"rpworld/backend/internal/session"
	"rpworld/backend/internal/storage"
	"rpworld/backend/internal/vehicle"

	"go.uber.org/zap"
)

// Reply is what the issuing actor sees.
type Reply struct {
	Text  string
	Style session.Style
}

type Sessions interface {
	Get(id uint) (session.Actor, bool)
	LookupByName(name string) (session.Actor, bool)
}

// Characters resolves offline players by name.
type Characters interface {
	GetCharacterByName(ctx context.Context, name string) (*models.Character, error)
}

// Engines are the services commands dispatch to.
type Engines struct {
	Permissions *permission.Registry
	Moderation  *moderation.Engine
	Vehicles    *vehicle.Service
	Properties  *property.Service
	Factions    *faction.Engine
	Economy     *economy.Service
	Jobs        *job.Service
}

// Handler runs one command and returns the success text.
type Handler func(ctx context.Context, c *Call) (string, error)

type Command struct {
	Name    string
	Usage   string
	MinArgs int
	Run     Handler
}

// Call is one parsed invocation.
type Call struct {
	Actor session.Actor
	Verb  string
	Args  []string
	d     *Dispatcher
}

type Dispatcher struct {
	commands map[string]Command
	engines  Engines
	sessions Sessions
	chars    Characters
	text     *localization.Localizer
	lang     string
	log      *zap.Logger
	observe  func(verb, outcome string)
}

func New(engines Engines, sessions Sessions, chars Characters, text *localization.Localizer, log *zap.Logger) *Dispatcher {
	d := &Dispatcher{
		commands: make(map[string]Command),
		engines:  engines,
		sessions: sessions,
		chars:    chars,
		text:     text,
		lang:     localization.DefaultLang,
		log:      log,
	}
	d.Register(Command{Name: "help", Run: d.help})
	d.registerModeration()
	d.registerAssets()
	d.registerFactions()
	d.registerEconomy()
	return d
}

// SetObserver installs a callback that sees every command outcome.
func (d *Dispatcher) SetObserver(fn func(verb, outcome string)) { d.observe = fn }

// Register adds or replaces a command.
func (d *Dispatcher) Register(cmd Command) {
	d.commands[strings.ToLower(cmd.Name)] = cmd
}

// Names lists the registered verbs in order.
func (d *Dispatcher) Names() []string {
	out := make([]string, 0, len(d.commands))
	for name := range d.commands {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

func (d *Dispatcher) t(key string, args ...any) string {
	return d.text.Format(d.lang, key, args...)
}

func (d *Dispatcher) outcome(verb, outcome string) {
	if d.observe != nil {
		d.observe(verb, outcome)
	}
}

// Execute parses and runs one command line for actorID.
func (d *Dispatcher) Execute(ctx context.Context, actorID uint, line string) Reply {
	fields := strings.Fields(strings.TrimPrefix(strings.TrimSpace(line), "/"))
	if len(fields) == 0 {
		return Reply{Text: d.t("cmd.empty"), Style: session.StyleError}
	}
	verb := strings.ToLower(fields[0])

	cmd, ok := d.commands[verb]
	if !ok {
		d.outcome("unknown", "unknown")
		return Reply{Text: d.t("cmd.unknown", verb), Style: session.StyleError}
	}
	actor, ok := d.sessions.Get(actorID)
	if !ok {
		d.outcome(verb, "unauthenticated")
		return Reply{Text: d.t("cmd.not_logged_in"), Style: session.StyleError}
	}
	if len(fields)-1 < cmd.MinArgs {
		d.outcome(verb, "usage")
		return Reply{Text: d.t("cmd.usage", verb, cmd.Usage), Style: session.StyleError}
	}

	text, err := cmd.Run(ctx, &Call{Actor: actor, Verb: verb, Args: fields[1:], d: d})
	if err != nil {
		kind := apperr.KindOf(err)
		if kind == apperr.KindStore {
			d.log.Warn("command failed", zap.String("verb", verb), zap.Uint("actor_id", actorID), zap.Error(err))
		}
		d.outcome(verb, strings.ToLower(string(kind)))
		return Reply{Text: apperr.UserMessage(err), Style: session.StyleError}
	}
	d.outcome(verb, "ok")
	return Reply{Text: text, Style: session.StyleSuccess}
}

func (d *Dispatcher) help(ctx context.Context, c *Call) (string, error) {
	var b strings.Builder
	b.WriteString(d.t("cmd.help_header"))
	for _, name := range d.Names() {
		b.WriteString("\n/")
		b.WriteString(name)
		if u := d.commands[name].Usage; u != "" {
			b.WriteString(" ")
			b.WriteString(u)
		}
	}
	return b.String(), nil
}

// Arg returns argument i or "".
func (c *Call) Arg(i int) string {
	if i < len(c.Args) {
		return c.Args[i]
	}
	return ""
}

// Rest joins the arguments from i on.
func (c *Call) Rest(i int) string {
	if i >= len(c.Args) {
		return ""
	}
	return strings.Join(c.Args[i:], " ")
}

func (c *Call) badNumber(s string) error {
	return apperr.InvalidInput("%s", c.d.t("cmd.bad_number", s))
}

// ID parses argument i as an entity id; a leading '#' is allowed.
func (c *Call) ID(i int) (uint, error) {
	s := strings.TrimPrefix(c.Arg(i), "#")
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil || n == 0 {
		return 0, c.badNumber(c.Arg(i))
	}
	return uint(n), nil
}

// Int parses argument i as an int.
func (c *Call) Int(i int) (int, error) {
	n, err := strconv.Atoi(c.Arg(i))
	if err != nil {
		return 0, c.badNumber(c.Arg(i))
	}
	return n, nil
}

// Money parses argument i as a whole amount, allowing a leading '$'.
func (c *Call) Money(i int) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimPrefix(c.Arg(i), "$"), 10, 64)
	if err != nil {
		return 0, c.badNumber(c.Arg(i))
	}
	return n, nil
}

// Player resolves argument i to a character: an online name first, then a
// stored name, then "#id".
func (c *Call) Player(ctx context.Context, i int) (uint, string, error) {
	arg := c.Arg(i)
	if strings.HasPrefix(arg, "#") {
		id, err := c.ID(i)
		if err != nil {
			return 0, "", err
		}
		if a, ok := c.d.sessions.Get(id); ok {
			return a.ID, a.Name, nil
		}
		return id, arg, nil
	}
	if a, ok := c.d.sessions.LookupByName(arg); ok {
		return a.ID, a.Name, nil
	}
	ch, err := c.d.chars.GetCharacterByName(ctx, arg)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return 0, "", apperr.NotFound("%s", c.d.t("cmd.no_player", arg))
		}
		c.d.log.Error("player lookup failed", zap.String("name", arg), zap.Error(err))
		return 0, "", apperr.Store("lookup player", err)
	}
	return ch.ID, ch.Name, nil
}

// AssetClass parses argument i as "vehicle" or "property".
func (c *Call) AssetClass(i int) (models.AssetClass, error) {
	switch strings.ToLower(c.Arg(i)) {
	case "vehicle", "veh", "car":
		return models.AssetVehicle, nil
	case "property", "prop", "house":
		return models.AssetProperty, nil
	}
	return "", apperr.InvalidInput("Asset type must be vehicle or property, not %q.", c.Arg(i))
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func yesNo(b bool, yes, no string) string {
	if b {
		return yes
	}
	return no
}
