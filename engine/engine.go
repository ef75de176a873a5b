// Package engine implements §6's command surface: a table of handlers for
// the minirel shell's sixteen commands, dispatched by the first whitespace-
// separated token of a line. Grounded on the teacher's sgbd.ProcessCommand
// (a prefix-matching switch over an open line, writing "OK" or a result to
// an io.Writer and leaving the caller's loop alive on error) reshaped
// around minirel's positional argv commands instead of SQL keywords.
package engine

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"minirel/algebra"
	"minirel/cache"
	"minirel/catalog"
	"minirel/config"
	"minirel/dberr"
	"minirel/heap"
	"minirel/schema"
)

// ErrQuit is returned by Dispatch for the "quit" command; the caller's REPL
// loop is expected to clean up and stop on this sentinel, the Go analogue
// of the original Quit() calling exit(OK) after CloseDB.
var ErrQuit = errors.New("quit")

// Engine wraps at most one open database plus the configuration it was
// opened with, the same single-process-global shape as the original's
// db_open/catcache pair collapsed into one struct instead of package
// globals.
type Engine struct {
	cfg  *config.Config
	log  *logrus.Logger
	db   *schema.DB
	demo bool
}

// Option configures optional Engine behavior not implied by cfg/log alone.
type Option func(*Engine)

// WithDemoData makes every "createdb" also seed the §4.7 students/professors
// demo relations, via schema.DB.Bootstrap, so the shell has something to
// query right away. Off by default; cmd/minirel turns it on with -demo.
func WithDemoData() Option {
	return func(e *Engine) { e.demo = true }
}

// New builds an Engine with no database open.
func New(cfg *config.Config, log *logrus.Logger, opts ...Option) *Engine {
	e := &Engine{cfg: cfg, log: log}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Close flushes and closes any currently open database, for clean shutdown
// outside of the "quit"/"closedb" commands (e.g. on a fatal read error).
func (e *Engine) Close() error {
	if e.db == nil {
		return nil
	}
	err := e.db.Close()
	e.db = nil
	return err
}

// Dispatch parses one line and runs the command it names, writing any
// result text to w. It returns ErrQuit when the line was "quit".
func (e *Engine) Dispatch(line string, w io.Writer) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := fields[0], fields[1:]

	if e.log != nil {
		e.log.WithFields(logrus.Fields{"command": cmd, "args": args}).Debug("dispatching command")
	}

	switch cmd {
	case "createdb":
		return e.createdb(args)
	case "destroydb":
		return e.destroydb(args)
	case "opendb":
		return e.opendb(args)
	case "closedb":
		return e.closedbCmd(args)
	case "create":
		return e.create(args)
	case "destroy":
		return e.destroy(args)
	case "load":
		return e.load(args)
	case "insert":
		return e.insert(args, w)
	case "delete":
		return e.delete(args, w)
	case "select":
		return e.selectCmd(args)
	case "project":
		return e.project(args)
	case "join":
		return e.join(args)
	case "buildindex":
		return e.buildindex(args)
	case "dropindex":
		return e.dropindex(args)
	case "print":
		return e.print(args, w)
	case "quit":
		return ErrQuit
	default:
		return e.suggestCommand(cmd)
	}
}

func (e *Engine) suggestCommand(cmd string) error {
	best, ok := closestMatch(cmd, commandNames)
	err := dberr.New(dberr.InvalidFormat).WithArg(cmd)
	if ok {
		return errors.WithStack(errors.Wrap(err, fmt.Sprintf("did you mean %q?", best)))
	}
	return errors.WithStack(err)
}

var commandNames = []string{
	"createdb", "destroydb", "opendb", "closedb",
	"create", "destroy", "load",
	"insert", "delete", "select", "project", "join",
	"buildindex", "dropindex", "print", "quit",
}

func (e *Engine) requireClosed() error {
	if e.db != nil {
		return errors.WithStack(dberr.New(dberr.DBNotClosed))
	}
	return nil
}

func (e *Engine) requireOpen() (*schema.DB, error) {
	if e.db == nil {
		return nil, errors.WithStack(dberr.New(dberr.DBNotOpen))
	}
	return e.db, nil
}

func (e *Engine) createdb(args []string) error {
	if len(args) < 1 {
		return errors.WithStack(dberr.New(dberr.ArgcInsufficient))
	}
	if err := e.requireClosed(); err != nil {
		return err
	}
	if err := schema.CreateDB(e.cfg, args[0]); err != nil {
		return err
	}
	if !e.demo {
		return nil
	}
	return e.seedDemoData(args[0])
}

// seedDemoData opens the just-created database, bootstraps the §4.7 demo
// relations into it, and closes it again, leaving the database closed on
// return exactly as a plain "createdb" would (the caller still issues its
// own "opendb" afterward).
func (e *Engine) seedDemoData(dir string) error {
	db, err := schema.OpenDB(e.cfg, dir, e.log)
	if err != nil {
		return err
	}
	if err := db.Bootstrap(demoRelations()...); err != nil {
		db.Close()
		return err
	}
	return db.Close()
}

func (e *Engine) destroydb(args []string) error {
	if len(args) < 1 {
		return errors.WithStack(dberr.New(dberr.ArgcInsufficient))
	}
	var open *schema.DB
	if e.db != nil && e.db.Dir == args[0] {
		open = e.db
	}
	if err := schema.DestroyDB(e.cfg, args[0], open); err != nil {
		return err
	}
	if open != nil {
		e.db = nil
	}
	return nil
}

func (e *Engine) opendb(args []string) error {
	if len(args) < 1 {
		return errors.WithStack(dberr.New(dberr.ArgcInsufficient))
	}
	if err := e.requireClosed(); err != nil {
		return err
	}
	db, err := schema.OpenDB(e.cfg, args[0], e.log)
	if err != nil {
		return err
	}
	e.db = db
	return nil
}

func (e *Engine) closedbCmd(args []string) error {
	if _, err := e.requireOpen(); err != nil {
		return err
	}
	if err := e.db.Close(); err != nil {
		return err
	}
	e.db = nil
	return nil
}

// parseAttrFormat decodes one "<attr> <fmt>" pair's format token: "i", "f",
// or "sNN" for a fixed-width string of NN bytes.
func parseAttrFormat(fmtTok string) (catalog.AttrType, int, error) {
	switch {
	case fmtTok == "i":
		return catalog.TypeInt, 4, nil
	case fmtTok == "f":
		return catalog.TypeFloat, 4, nil
	case strings.HasPrefix(fmtTok, "s"):
		n, err := strconv.Atoi(fmtTok[1:])
		if err != nil || n < 1 {
			return 0, 0, errors.WithStack(dberr.New(dberr.InvalidFormat).WithArg(fmtTok))
		}
		return catalog.TypeString, n, nil
	default:
		return 0, 0, errors.WithStack(dberr.New(dberr.InvalidFormat).WithArg(fmtTok))
	}
}

func (e *Engine) create(args []string) error {
	db, err := e.requireOpen()
	if err != nil {
		return err
	}
	if len(args) < 3 || len(args)%2 != 1 {
		return errors.WithStack(dberr.New(dberr.ArgcInsufficient))
	}
	relName := args[0]
	pairs := args[1:]
	specs := make([]schema.AttrSpec, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		typ, size, err := parseAttrFormat(pairs[i+1])
		if err != nil {
			return err
		}
		specs = append(specs, schema.AttrSpec{Name: pairs[i], Type: typ, Size: size})
	}
	return db.Create(relName, specs)
}

func (e *Engine) destroy(args []string) error {
	db, err := e.requireOpen()
	if err != nil {
		return err
	}
	if len(args) < 1 {
		return errors.WithStack(dberr.New(dberr.ArgcInsufficient))
	}
	if err := db.Destroy(args[0]); err != nil {
		return e.withRelSuggestion(err, args[0])
	}
	return nil
}

func (e *Engine) load(args []string) error {
	db, err := e.requireOpen()
	if err != nil {
		return err
	}
	if len(args) < 2 {
		return errors.WithStack(dberr.New(dberr.ArgcInsufficient))
	}
	if err := db.Load(args[0], args[1]); err != nil {
		return e.withRelSuggestion(err, args[0])
	}
	return nil
}

func (e *Engine) insert(args []string, w io.Writer) error {
	db, err := e.requireOpen()
	if err != nil {
		return err
	}
	if len(args) < 3 || len(args)%2 != 1 {
		return errors.WithStack(dberr.New(dberr.ArgcInsufficient))
	}
	relName := args[0]
	pairs := args[1:]
	literals := make([]algebra.Literal, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		literals = append(literals, algebra.Literal{Name: pairs[i], Value: pairs[i+1]})
	}
	rid, err := algebra.Insert(db, relName, literals)
	if err != nil {
		return e.withRelSuggestion(err, relName)
	}
	fmt.Fprintf(w, "inserted %s\n", rid)
	return nil
}

func parseOp(tok string) (catalog.Op, error) {
	n, err := strconv.Atoi(tok)
	if err != nil || n < int(catalog.OpEQ) || n > int(catalog.OpGTE) {
		return 0, errors.WithStack(dberr.New(dberr.InvalidValue).WithArg(tok))
	}
	return catalog.Op(n), nil
}

func (e *Engine) delete(args []string, w io.Writer) error {
	db, err := e.requireOpen()
	if err != nil {
		return err
	}
	if len(args) != 4 {
		return errors.WithStack(dberr.New(dberr.ArgcInsufficient))
	}
	op, err := parseOp(args[2])
	if err != nil {
		return err
	}
	n, err := algebra.Delete(db, args[0], args[1], op, args[3])
	if err != nil {
		return e.withRelSuggestion(err, args[0])
	}
	fmt.Fprintf(w, "deleted %d row(s)\n", n)
	return nil
}

func (e *Engine) selectCmd(args []string) error {
	db, err := e.requireOpen()
	if err != nil {
		return err
	}
	if len(args) != 5 {
		return errors.WithStack(dberr.New(dberr.ArgcInsufficient))
	}
	op, err := parseOp(args[3])
	if err != nil {
		return err
	}
	if err := algebra.Select(db, args[0], args[1], args[2], op, args[4]); err != nil {
		return e.withRelSuggestion(err, args[1])
	}
	return nil
}

func (e *Engine) project(args []string) error {
	db, err := e.requireOpen()
	if err != nil {
		return err
	}
	if len(args) < 3 {
		return errors.WithStack(dberr.New(dberr.ArgcInsufficient))
	}
	if err := algebra.Project(db, args[0], args[1], args[2:]); err != nil {
		return e.withRelSuggestion(err, args[1])
	}
	return nil
}

func (e *Engine) join(args []string) error {
	db, err := e.requireOpen()
	if err != nil {
		return err
	}
	if len(args) != 5 {
		return errors.WithStack(dberr.New(dberr.ArgcInsufficient))
	}
	if err := algebra.Join(db, args[0], args[1], args[2], args[3], args[4]); err != nil {
		return e.withRelSuggestion(err, args[1])
	}
	return nil
}

func (e *Engine) buildindex(args []string) error {
	db, err := e.requireOpen()
	if err != nil {
		return err
	}
	if len(args) != 2 {
		return errors.WithStack(dberr.New(dberr.ArgcInsufficient))
	}
	if err := algebra.BuildIndex(db, args[0], args[1]); err != nil {
		return e.withRelSuggestion(err, args[0])
	}
	return nil
}

func (e *Engine) dropindex(args []string) error {
	db, err := e.requireOpen()
	if err != nil {
		return err
	}
	if len(args) < 1 || len(args) > 2 {
		return errors.WithStack(dberr.New(dberr.ArgcInsufficient))
	}
	attrName := ""
	if len(args) == 2 {
		attrName = args[1]
	}
	if err := algebra.DropIndex(db, args[0], attrName); err != nil {
		return e.withRelSuggestion(err, args[0])
	}
	return nil
}

// withRelSuggestion appends a fuzzy "did you mean?" candidate to a
// RelNoExist/AttrNoExist error, per §4.8's printCloseStrings hook. relHint
// is the relation name the command named (used to open the relation whose
// attribute list a misspelled attribute should be matched against); the
// misspelled identifier itself is read off the error's own Arg, since that
// is what every RelNoExist/AttrNoExist site already attaches via WithArg.
func (e *Engine) withRelSuggestion(cause error, relHint string) error {
	if e.db == nil {
		return cause
	}
	var de *dberr.Error
	if !errors.As(cause, &de) {
		return cause
	}
	var suggestion string
	switch de.Code {
	case dberr.RelNoExist:
		names, err := e.db.Cache.RelationNames(relationNameScanner(e.db))
		if err == nil {
			if best, ok := closestMatch(de.Arg, names); ok {
				suggestion = best
			}
		}
	case dberr.AttrNoExist:
		relNum, err := e.db.Cache.OpenRel(relHint)
		if err == nil {
			names, err := e.db.Cache.AttributeNames(relNum)
			if err == nil {
				if best, ok := closestMatch(de.Arg, names); ok {
					suggestion = best
				}
			}
		}
	default:
		return cause
	}
	if suggestion == "" {
		return cause
	}
	return errors.Wrap(cause, fmt.Sprintf("did you mean %q?", suggestion))
}

// relationNameScanner adapts heap.GetNextRec over relcat into the callback
// shape cache.Catalog.RelationNames expects, since cache cannot import heap
// (heap depends on cache) and so leaves the scan to its caller.
func relationNameScanner(db *schema.DB) func(func(catalog.RelCatRec) bool) error {
	return func(visit func(catalog.RelCatRec) bool) error {
		rid := catalog.InvalidRID
		for {
			next, rec, err := heap.GetNextRec(db.Cache, cache.RelCatSlot, rid)
			if err != nil {
				return err
			}
			if !next.IsValid() {
				return nil
			}
			rid = next
			r, err := catalog.DecodeRelCatRec(db.Config(), rec)
			if err != nil {
				return err
			}
			if !visit(*r) {
				return nil
			}
		}
	}
}
