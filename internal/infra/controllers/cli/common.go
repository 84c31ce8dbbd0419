package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/fabien-marty/git-tag/internal/app"
	"github.com/fabien-marty/git-tag/internal/app/tag"
	"github.com/fabien-marty/git-tag/internal/infra/adapters/git/gitexec"
	"github.com/fabien-marty/git-tag/internal/infra/adapters/git/gogit"
	refspebble "github.com/fabien-marty/git-tag/internal/infra/adapters/refs/pebble"
	signeropenpgp "github.com/fabien-marty/git-tag/internal/infra/adapters/signer/openpgp"
	"github.com/fabien-marty/slog-helpers/pkg/slogc"
	"github.com/relvacode/iso8601"
	"github.com/urfave/cli/v2"
)

const (
	objectBackendGoGit = "gogit"
	objectBackendExec  = "exec"
	refBackendGit      = "git"
	refBackendPebble   = "pebble"
)

var commonCliFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "log-level",
		Value:   "WARN",
		Usage:   "log level (DEBUG, INFO, WARN, ERROR)",
		EnvVars: []string{"LOG_LEVEL"},
	},
	&cli.StringFlag{
		Name:    "log-format",
		Value:   "text-human",
		Usage:   "log format (text-human, text, json, json-gcp)",
		EnvVars: []string{"LOG_FORMAT"},
	},
	&cli.StringFlag{
		Name:    "repository",
		Aliases: []string{"C"},
		Value:   ".",
		Usage:   "Git repository local path",
		EnvVars: []string{"GIT_TAG_REPOSITORY"},
	},
	&cli.StringFlag{
		Name:    "backend",
		Value:   objectBackendGoGit,
		Usage:   "object backend (gogit: pure go implementation, exec: git binary)",
		EnvVars: []string{"GIT_TAG_BACKEND"},
	},
	&cli.StringFlag{
		Name:    "ref-backend",
		Value:   refBackendGit,
		Usage:   "reference backend (git: references of the repository, pebble: pebble database)",
		EnvVars: []string{"GIT_TAG_REF_BACKEND"},
	},
	&cli.StringFlag{
		Name:    "pebble-path",
		Value:   ".git-tag-refs",
		Usage:   "directory of the pebble database (only used with --ref-backend=pebble)",
		EnvVars: []string{"GIT_TAG_PEBBLE_PATH"},
	},
	&cli.StringFlag{
		Name:    "keyring",
		Usage:   "path of an armored OpenPGP private keyring (used to sign tags)",
		EnvVars: []string{"GIT_TAG_KEYRING"},
	},
	&cli.StringFlag{
		Name:    "passphrase",
		Usage:   "passphrase of the private keys of the keyring",
		EnvVars: []string{"GIT_TAG_PASSPHRASE"},
	},
	&cli.StringFlag{
		Name:    "tagger-name",
		Usage:   "tagger name (default: user.name of the git configuration)",
		EnvVars: []string{"GIT_TAG_TAGGER_NAME", "GIT_COMMITTER_NAME"},
	},
	&cli.StringFlag{
		Name:    "tagger-email",
		Usage:   "tagger email (default: user.email of the git configuration)",
		EnvVars: []string{"GIT_TAG_TAGGER_EMAIL", "GIT_COMMITTER_EMAIL"},
	},
	&cli.StringFlag{
		Name:    "tagger-date",
		Usage:   "tagger date (ISO8601, default: now)",
		EnvVars: []string{"GIT_TAG_TAGGER_DATE"},
	},
}

func setDefaultLogger(cCtx *cli.Context) {
	logger := slogc.GetLogger(
		slogc.WithLevel(slogc.GetLogLevelFromString(cCtx.String("log-level"))),
		slogc.WithLogFormat(slogc.GetLogFormatFromString(cCtx.String("log-format"))),
	)
	slog.SetDefault(logger)
}

// gitConfigReader reads the git configuration of the repository.
type gitConfigReader interface {
	Identity() tag.Identity
	ConfigOption(section string, option string) string
}

// backends are the adapters selected by the CLI flags.
type backends struct {
	refs    tag.RefStore
	objects tag.ObjectStore
	config  gitConfigReader
	close   func() error
}

func getBackends(cCtx *cli.Context) (*backends, error) {
	localGitPath := cCtx.String("repository")
	res := &backends{close: func() error { return nil }}
	switch cCtx.String("backend") {
	case objectBackendGoGit:
		adapter, err := gogit.Open(gogit.AdapterOptions{LocalGitPath: localGitPath})
		if err != nil {
			return nil, err
		}
		res.refs, res.objects, res.config = adapter, adapter, adapter
	case objectBackendExec:
		adapter := gitexec.NewAdapter(gitexec.AdapterOptions{LocalGitPath: localGitPath})
		res.refs, res.objects, res.config = adapter, adapter, adapter
	default:
		return nil, fmt.Errorf("unknown backend: %s", cCtx.String("backend"))
	}
	switch cCtx.String("ref-backend") {
	case refBackendGit:
	case refBackendPebble:
		adapter, err := refspebble.NewAdapter(refspebble.AdapterOptions{Path: cCtx.String("pebble-path")})
		if err != nil {
			return nil, err
		}
		res.refs = adapter
		res.close = adapter.Close
	default:
		return nil, fmt.Errorf("unknown ref backend: %s", cCtx.String("ref-backend"))
	}
	return res, nil
}

func getTagger(cCtx *cli.Context, config gitConfigReader) (tag.Identity, error) {
	tagger := config.Identity()
	if name := cCtx.String("tagger-name"); name != "" {
		tagger.Name = name
	}
	if email := cCtx.String("tagger-email"); email != "" {
		tagger.Email = email
	}
	if date := cCtx.String("tagger-date"); date != "" {
		when, err := iso8601.ParseString(date)
		if err != nil {
			return tagger, fmt.Errorf("can't parse the tagger date %s: %w", date, err)
		}
		tagger.When = when
	}
	if tagger.Name == "" || tagger.Email == "" {
		slog.Debug("incomplete tagger identity", slog.String("name", tagger.Name), slog.String("email", tagger.Email))
	}
	return tagger, nil
}

func getSigner(cCtx *cli.Context, config gitConfigReader) tag.Signer {
	return signeropenpgp.NewAdapter(signeropenpgp.AdapterOptions{
		KeyRingPath:  cCtx.String("keyring"),
		Passphrase:   cCtx.String("passphrase"),
		DefaultKeyID: config.ConfigOption("user", "signingkey"),
	})
}

func getAppConfig(cCtx *cli.Context, config gitConfigReader) app.Config {
	forceSignAnnotated, err := strconv.ParseBool(config.ConfigOption("tag", "forceSignAnnotated"))
	if err != nil {
		forceSignAnnotated = false
	}
	return app.Config{
		ForceSignAnnotated: forceSignAnnotated,
		ListSort:           cCtx.String("sort"),
		ListFormat:         cCtx.String("format"),
	}
}

// exitError maps the error to a cli exit error (code 2 for tag level failures, 1 otherwise).
func exitError(err error) error {
	switch {
	case errors.Is(err, tag.ErrTagAlreadyExists),
		errors.Is(err, tag.ErrNoSuchTag),
		errors.Is(err, tag.ErrConcurrentModification),
		errors.Is(err, tag.ErrUnresolvableTarget),
		errors.Is(err, tag.ErrInvalidTagName):
		return cli.Exit(err.Error(), 2)
	}
	return cli.Exit(err.Error(), 1)
}
