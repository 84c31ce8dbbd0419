package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/fabien-marty/git-tag/internal/app"
	"github.com/fabien-marty/git-tag/internal/app/tag"
	"github.com/urfave/cli/v2"
)

var tagCliFlags = []cli.Flag{
	&cli.BoolFlag{
		Name:    "list",
		Aliases: []string{"l"},
		Usage:   "list tags (arguments are glob patterns, a tag is listed if it matches one of them)",
	},
	&cli.StringFlag{
		Name:    "sort",
		Value:   app.SortByRefName,
		Usage:   "sort order of the listed tags (refname, version)",
		EnvVars: []string{"GIT_TAG_SORT"},
	},
	&cli.StringFlag{
		Name:    "format",
		Value:   app.DefaultListFormat,
		Usage:   "golang template (with sprig functions) used to render each listed tag (fields: .Name, .RefName, .Object, .Version)",
		EnvVars: []string{"GIT_TAG_FORMAT"},
	},
	&cli.BoolFlag{
		Name:    "delete",
		Aliases: []string{"d"},
		Usage:   "delete the given tags",
	},
	&cli.BoolFlag{
		Name:    "force",
		Aliases: []string{"f"},
		Usage:   "replace an existing tag",
	},
	&cli.BoolFlag{
		Name:    "annotate",
		Aliases: []string{"a"},
		Usage:   "make an unsigned, annotated tag object",
	},
	&cli.BoolFlag{
		Name:  "no-annotate",
		Usage: "make a lightweight tag (even if a message is given)",
	},
	&cli.StringFlag{
		Name:    "message",
		Aliases: []string{"m"},
		Usage:   "tag message (implies --annotate)",
	},
	&cli.BoolFlag{
		Name:    "sign",
		Aliases: []string{"s"},
		Usage:   "make a signed tag with the default key (implies --annotate)",
	},
	&cli.BoolFlag{
		Name:  "no-sign",
		Usage: "don't sign the tag (overrides tag.forceSignAnnotated)",
	},
	&cli.StringFlag{
		Name:    "local-user",
		Aliases: []string{"u"},
		Usage:   "make a signed tag with the given key id (implies --sign)",
	},
}

// normalizeMessage terminates a non empty message with a newline (as git does).
func normalizeMessage(message string) string {
	message = strings.TrimRight(message, " \t\n")
	if message == "" {
		return ""
	}
	return message + "\n"
}

// getRequest builds the tag creation request from the CLI flags and arguments.
func getRequest(cCtx *cli.Context) (*tag.Request, error) {
	if cCtx.Bool("sign") && cCtx.Bool("no-sign") {
		return nil, errors.New("--sign and --no-sign are mutually exclusive")
	}
	if cCtx.Bool("annotate") && cCtx.Bool("no-annotate") {
		return nil, errors.New("--annotate and --no-annotate are mutually exclusive")
	}
	if cCtx.NArg() > 2 {
		return nil, errors.New("too many arguments (expected: NAME [OBJECT])")
	}
	req := &tag.Request{
		Name:        cCtx.Args().Get(0),
		Target:      cCtx.Args().Get(1),
		Annotated:   tag.TristateFromFlags(cCtx.Bool("annotate"), cCtx.Bool("no-annotate")),
		Signed:      tag.TristateFromFlags(cCtx.Bool("sign"), cCtx.Bool("no-sign")),
		SigningKey:  cCtx.String("local-user"),
		ForceUpdate: cCtx.Bool("force"),
	}
	if cCtx.IsSet("message") {
		message := normalizeMessage(cCtx.String("message"))
		req.Message = &message
	}
	return req, nil
}

func listAction(cCtx *cli.Context, service *app.Service) error {
	refs, err := service.ListTags(cCtx.Args().Slice())
	if err != nil {
		return exitError(err)
	}
	out, err := service.FormatRefs(refs)
	if err != nil {
		return exitError(err)
	}
	fmt.Print(out)
	return nil
}

func deleteAction(cCtx *cli.Context, service *app.Service) error {
	names := cCtx.Args().Slice()
	if len(names) == 0 {
		return cli.Exit("--delete needs at least one tag name", 1)
	}
	deleted, err := service.DeleteTags(names)
	missing := 0
	for i, name := range names {
		if !slices.Contains(deleted, name) && !slices.Contains(names[:i], name) {
			fmt.Fprintf(os.Stderr, "error: tag '%s' not found.\n", name)
			missing++
		}
	}
	if err != nil && !errors.Is(err, tag.ErrNoSuchTag) {
		return exitError(err)
	}
	for _, name := range deleted {
		fmt.Printf("Deleted tag '%s'\n", name)
	}
	if missing > 0 {
		return cli.Exit("", 2)
	}
	return nil
}

func createAction(cCtx *cli.Context, service *app.Service) error {
	req, err := getRequest(cCtx)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	ref, err := service.CreateTag(*req)
	if errors.Is(err, tag.ErrTagAlreadyExists) {
		return cli.Exit(fmt.Sprintf("fatal: tag '%s' already exists", req.Name), 2)
	} else if err != nil {
		return exitError(err)
	}
	slog.Debug("tag created", slog.String("ref", ref.Name), slog.String("object", ref.Target.String()))
	return nil
}

func tagAction(cCtx *cli.Context) error {
	setDefaultLogger(cCtx)
	b, err := getBackends(cCtx)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer func() {
		if err := b.close(); err != nil {
			slog.Warn("can't close the reference backend", slog.String("err", err.Error()))
		}
	}()
	tagger, err := getTagger(cCtx, b.config)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	service := app.NewService(getAppConfig(cCtx, b.config), b.refs, b.objects, getSigner(cCtx, b.config), tagger)
	switch {
	case cCtx.Bool("delete"):
		return deleteAction(cCtx, service)
	case cCtx.Bool("list") || cCtx.NArg() == 0:
		return listAction(cCtx, service)
	}
	return createAction(cCtx, service)
}

// reorderArgs moves the flags found after positional arguments in front of them
// (urfave/cli stops parsing flags at the first positional argument while git doesn't).
// Everything after "--" is kept positional.
func reorderArgs(cliFlags []cli.Flag, args []string) []string {
	if len(args) == 0 {
		return args
	}
	takesValue := map[string]bool{}
	for _, f := range cliFlags {
		valued := false
		if docFlag, ok := f.(interface{ TakesValue() bool }); ok {
			valued = docFlag.TakesValue()
		}
		for _, name := range f.Names() {
			takesValue[name] = valued
		}
	}
	flags := []string{}
	positionals := []string{}
	dashDash := false
	for i := 1; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			dashDash = true
			positionals = append(positionals, args[i+1:]...)
			break
		}
		if len(arg) < 2 || !strings.HasPrefix(arg, "-") {
			positionals = append(positionals, arg)
			continue
		}
		flags = append(flags, arg)
		if strings.Contains(arg, "=") {
			continue
		}
		name := strings.TrimLeft(arg, "-")
		valued, known := takesValue[name]
		if !known && !strings.HasPrefix(arg, "--") {
			// combined short options (-am): the last one can take a value
			valued = takesValue[name[len(name)-1:]]
		}
		if valued && i+1 < len(args) {
			i++
			flags = append(flags, args[i])
		}
	}
	res := append([]string{args[0]}, flags...)
	if dashDash {
		res = append(res, "--")
	}
	return append(res, positionals...)
}

func Main() {
	cliFlags := make([]cli.Flag, 0, len(commonCliFlags)+len(tagCliFlags))
	cliFlags = append(cliFlags, commonCliFlags...)
	cliFlags = append(cliFlags, tagCliFlags...)
	app := &cli.App{
		Name:                   "git-tag",
		Usage:                  "Create, list and delete tags of a git repository",
		Action:                 tagAction,
		ArgsUsage:              "[NAME [OBJECT]] | --list [PATTERN...] | --delete NAME... (flags can be given before or after the arguments)",
		Flags:                  cliFlags,
		UseShortOptionHandling: true,
	}
	if err := app.Run(reorderArgs(cliFlags, os.Args)); err != nil {
		fmt.Fprintf(os.Stderr, "bad CLI arguments: %s\n", slog.String("err", err.Error()))
		os.Exit(1)
	}
}
