package gitexec

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/fabien-marty/git-tag/internal/app/tag"
)

const (
	zeroID  = "0000000000000000000000000000000000000000"
	sep     = "\x00"
	reflogM = "git-tag"
)

var _ tag.RefStore = &Adapter{}
var _ tag.ObjectStore = &Adapter{}

// errNotFound is returned by executeCmd when git exits with code 1 (rev-parse --verify --quiet...).
var errNotFound = errors.New("not found")

type AdapterOptions struct {
	LocalGitPath string
	GitBinary    string // default to "git"
}

// Adapter implements the object store and the reference store with the git binary.
// Reference updates rely on "git update-ref <ref> <new> <old>" for the compare-and-swap.
type Adapter struct {
	opts AdapterOptions
}

func NewAdapter(opts AdapterOptions) *Adapter {
	if opts.GitBinary == "" {
		opts.GitBinary = "git"
	}
	return &Adapter{
		opts: opts,
	}
}

// commandError is a git command which exited with a non zero code.
type commandError struct {
	cmd    string
	code   int
	stderr string
}

func (e *commandError) Error() string {
	return fmt.Sprintf("bad exit code %d for command: %s: %s", e.code, e.cmd, strings.TrimSpace(e.stderr))
}

func lastLine(output string) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1]
}

func (r *Adapter) executeCmd(logger *slog.Logger, stdin []byte, args ...string) (string, error) {
	cmd := exec.Command(r.opts.GitBinary, args...)
	if r.opts.LocalGitPath != "" && r.opts.LocalGitPath != "." {
		cmd.Dir = r.opts.LocalGitPath
	}
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	logger.Debug(fmt.Sprintf("executing command: %s...", cmd.String()))
	output, err := cmd.Output()
	if err != nil {
		var eerr *exec.ExitError
		if errors.As(err, &eerr) {
			logger.Debug(fmt.Sprintf("bad exit code for command: %s", cmd.String()), slog.Int("code", eerr.ExitCode()), slog.String("stderr", string(eerr.Stderr)))
			if eerr.ExitCode() == 1 && len(eerr.Stderr) == 0 {
				return "", errNotFound
			}
			return "", &commandError{cmd: cmd.String(), code: eerr.ExitCode(), stderr: string(eerr.Stderr)}
		}
		return "", fmt.Errorf("can't execute command: %s: %w", cmd.String(), err)
	}
	return string(output), nil
}

// isConflict returns true if the error is a failed compare-and-swap of git update-ref.
func isConflict(err error) bool {
	var cerr *commandError
	if !errors.As(err, &cerr) {
		return false
	}
	for _, msg := range []string{"but expected", "reference already exists", "cannot lock ref", "unable to resolve reference"} {
		if strings.Contains(cerr.stderr, msg) {
			return true
		}
	}
	return false
}

// encodeTag returns the tag object in the format expected by git mktag.
// signed is true for the payload and the object of a signed tag.
func encodeTag(t *tag.AnnotatedTag, signed bool) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "object %s\ntype %s\ntag %s\n", t.Target, t.TargetType, t.Name)
	fmt.Fprintf(&b, "tagger %s <%s> %d %s\n\n", t.Tagger.Name, t.Tagger.Email, t.Tagger.When.Unix(), t.Tagger.When.Format("-0700"))
	if signed {
		b.WriteString(t.SignedMessage())
		b.Write(t.Signature)
	} else {
		b.WriteString(t.Message)
	}
	return b.Bytes()
}

// decodeRefs decodes the output of git for-each-ref --format=%(refname)%00%(objectname).
func decodeRefs(output string) []tag.Ref {
	res := []tag.Ref{}
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.Split(line, sep)
		if len(parts) != 2 {
			slog.Warn("can't parse a ref line => ignoring it", slog.String("line", line))
			continue
		}
		res = append(res, tag.Ref{Name: parts[0], Target: tag.ObjectID(parts[1])})
	}
	return res
}

func (r *Adapter) ResolveToAny(revision string) (*tag.Object, error) {
	logger := slog.Default().With("gitOperation", "resolveToAny", "revision", revision)
	if strings.HasPrefix(revision, "-") {
		return nil, fmt.Errorf("%w: %s", tag.ErrUnresolvableTarget, revision)
	}
	output, err := r.executeCmd(logger, nil, "rev-parse", "--verify", "--quiet", revision+"^{object}")
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", tag.ErrUnresolvableTarget, revision, err)
	}
	id := lastLine(output)
	output, err = r.executeCmd(logger, nil, "cat-file", "-t", id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", tag.ErrUnresolvableTarget, revision, err)
	}
	return &tag.Object{ID: tag.ObjectID(id), Type: tag.ObjectType(lastLine(output))}, nil
}

func (r *Adapter) TagPayload(t *tag.AnnotatedTag) ([]byte, error) {
	return encodeTag(t, true), nil
}

func (r *Adapter) WriteAnnotatedTag(t *tag.AnnotatedTag) (tag.ObjectID, error) {
	logger := slog.Default().With("gitOperation", "mktag", "tag", t.Name)
	output, err := r.executeCmd(logger, encodeTag(t, t.IsSigned()), "mktag")
	if err != nil {
		return "", err
	}
	return tag.ObjectID(lastLine(output)), nil
}

func (r *Adapter) Resolve(name string) (tag.ObjectID, error) {
	logger := slog.Default().With("gitOperation", "resolve", "ref", name)
	output, err := r.executeCmd(logger, nil, "rev-parse", "--verify", "--quiet", name)
	if errors.Is(err, errNotFound) {
		return "", tag.ErrRefNotFound
	} else if err != nil {
		return "", err
	}
	return tag.ObjectID(lastLine(output)), nil
}

func (r *Adapter) ListRefs(prefix string) ([]tag.Ref, error) {
	logger := slog.Default().With("gitOperation", "listRefs", "prefix", prefix)
	output, err := r.executeCmd(logger, nil, "for-each-ref", "--format=%(refname)%00%(objectname)", prefix)
	if err != nil {
		return nil, err
	}
	refs := decodeRefs(output)
	res := make([]tag.Ref, 0, len(refs))
	for _, ref := range refs {
		if strings.HasPrefix(ref.Name, prefix) {
			res = append(res, ref)
		}
	}
	return res, nil
}

func (r *Adapter) Update(name string, oldValue tag.ObjectID, newValue tag.ObjectID) error {
	logger := slog.Default().With("gitOperation", "updateRef", "ref", name)
	old := oldValue.String()
	if oldValue.IsZero() {
		old = zeroID
	}
	_, err := r.executeCmd(logger, nil, "update-ref", "-m", reflogM, name, newValue.String(), old)
	if isConflict(err) {
		return tag.ErrRefConflict
	}
	return err
}

func (r *Adapter) Delete(name string) error {
	logger := slog.Default().With("gitOperation", "deleteRef", "ref", name)
	current, err := r.Resolve(name)
	if err != nil {
		return err
	}
	_, err = r.executeCmd(logger, nil, "update-ref", "-d", name, current.String())
	if isConflict(err) {
		return tag.ErrRefConflict
	}
	return err
}

// ConfigOption returns the value of a git configuration option (empty if not set).
func (r *Adapter) ConfigOption(section string, option string) string {
	logger := slog.Default().With("gitOperation", "config", "section", section, "option", option)
	output, err := r.executeCmd(logger, nil, "config", "--get", section+"."+option)
	if err != nil {
		return ""
	}
	return lastLine(output)
}

// Identity returns the tagger identity configured in the git configuration (user.name / user.email).
func (r *Adapter) Identity() tag.Identity {
	return tag.Identity{Name: r.ConfigOption("user", "name"), Email: r.ConfigOption("user", "email")}
}
