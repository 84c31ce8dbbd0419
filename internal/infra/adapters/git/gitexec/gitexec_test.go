package gitexec

import (
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabien-marty/git-tag/internal/app/tag"
)

var output = "refs/tags/v0.3.1\x004b825dc642cb6eb9a060e54bf8d69288fbee4904\n" +
	"refs/tags/v1.9.2\x001111111111111111111111111111111111111111\n" +
	"\n" +
	"garbage line\n" +
	"refs/tags/foo/bar\x002222222222222222222222222222222222222222\n"

func TestDecodeRefs(t *testing.T) {
	refs := decodeRefs(output)
	require.Len(t, refs, 3)
	assert.Equal(t, "refs/tags/v0.3.1", refs[0].Name)
	assert.Equal(t, tag.ObjectID("4b825dc642cb6eb9a060e54bf8d69288fbee4904"), refs[0].Target)
	assert.Equal(t, "foo/bar", refs[2].ShortName())
}

func TestEncodeTag(t *testing.T) {
	when := time.Date(2024, 1, 4, 14, 26, 16, 0, time.FixedZone("CET", 3600))
	annotated := &tag.AnnotatedTag{
		Name:       "v1.0.0",
		Target:     "1111111111111111111111111111111111111111",
		TargetType: tag.CommitObject,
		Tagger:     tag.Identity{Name: "John Doe", Email: "john@example.com", When: when},
		Message:    "release\n",
		Signature:  []byte("-----BEGIN PGP SIGNATURE-----\n-----END PGP SIGNATURE-----\n"),
	}
	expected := "object 1111111111111111111111111111111111111111\n" +
		"type commit\n" +
		"tag v1.0.0\n" +
		"tagger John Doe <john@example.com> 1704374776 +0100\n" +
		"\n" +
		"release\n"
	assert.Equal(t, expected, string(encodeTag(annotated, false)))
	assert.Equal(t, expected+string(annotated.Signature), string(encodeTag(annotated, true)))
}

func TestEncodeSignedTagWithoutTrailingNewline(t *testing.T) {
	annotated := &tag.AnnotatedTag{
		Name:       "v1.0.0",
		Target:     "1111111111111111111111111111111111111111",
		TargetType: tag.CommitObject,
		Tagger:     tag.Identity{Name: "John Doe", Email: "john@example.com", When: time.Unix(1704374776, 0).UTC()},
		Message:    "release",
	}
	payload := string(encodeTag(annotated, true))
	assert.True(t, strings.HasSuffix(payload, "\n\nrelease\n"))
	assert.True(t, strings.HasSuffix(string(encodeTag(annotated, false)), "\n\nrelease"))

	annotated.Signature = []byte("-----BEGIN PGP SIGNATURE-----\n-----END PGP SIGNATURE-----\n")
	assert.Equal(t, payload+string(annotated.Signature), string(encodeTag(annotated, true)))
}

func TestIsConflict(t *testing.T) {
	assert.False(t, isConflict(nil))
	assert.False(t, isConflict(errNotFound))
	assert.True(t, isConflict(&commandError{code: 128, stderr: "fatal: update_ref failed for ref 'refs/tags/v1': cannot lock ref 'refs/tags/v1': is at 1111 but expected 2222"}))
	assert.True(t, isConflict(&commandError{code: 128, stderr: "fatal: update_ref failed for ref 'refs/tags/v1': cannot lock ref 'refs/tags/v1': reference already exists"}))
	assert.False(t, isConflict(&commandError{code: 128, stderr: "fatal: not a git repository"}))
}

func TestLastLine(t *testing.T) {
	assert.Equal(t, "bar", lastLine("foo\nbar\n"))
	assert.Equal(t, "", lastLine(""))
}

func gitOrSkip(t *testing.T, dir string, args ...string) string {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
	cmd := exec.Command("git", append([]string{"-c", "user.name=John Doe", "-c", "user.email=john@example.com", "-c", "commit.gpgsign=false"}, args...)...)
	cmd.Dir = dir
	out, err := cmd.Output()
	require.NoError(t, err)
	return lastLine(string(out))
}

func TestAdapterOnRealRepository(t *testing.T) {
	dir := t.TempDir()
	gitOrSkip(t, dir, "init", "-q")
	gitOrSkip(t, dir, "commit", "-q", "--allow-empty", "-m", "first")
	head := tag.ObjectID(gitOrSkip(t, dir, "rev-parse", "HEAD"))

	gitOrSkip(t, dir, "config", "user.signingkey", "ABCD")
	adapter := NewAdapter(AdapterOptions{LocalGitPath: dir})
	assert.Equal(t, "ABCD", adapter.ConfigOption("user", "signingkey"))
	assert.Equal(t, "", adapter.ConfigOption("user", "doesnotexist"))
	obj, err := adapter.ResolveToAny("HEAD")
	require.NoError(t, err)
	assert.Equal(t, head, obj.ID)
	assert.Equal(t, tag.CommitObject, obj.Type)
	_, err = adapter.ResolveToAny("does-not-exist")
	assert.ErrorIs(t, err, tag.ErrUnresolvableTarget)
	_, err = adapter.ResolveToAny("--help")
	assert.ErrorIs(t, err, tag.ErrUnresolvableTarget)

	service := tag.New(adapter, adapter, nil, tag.Identity{Name: "John Doe", Email: "john@example.com"})
	msg := "release\n"
	ref, err := service.CreateOrUpdate(tag.Request{Name: "v1", Message: &msg})
	require.NoError(t, err)
	assert.Equal(t, "tag", gitOrSkip(t, dir, "cat-file", "-t", ref.Target.String()))
	assert.Equal(t, string(head), gitOrSkip(t, dir, "rev-parse", "v1^{commit}"))

	_, err = service.CreateOrUpdate(tag.Request{Name: "light"})
	require.NoError(t, err)
	_, err = service.CreateOrUpdate(tag.Request{Name: "light"})
	assert.ErrorIs(t, err, tag.ErrTagAlreadyExists)

	// stale expected value
	assert.ErrorIs(t, adapter.Update("refs/tags/light", "2222222222222222222222222222222222222222", head), tag.ErrRefConflict)
	assert.ErrorIs(t, adapter.Update("refs/tags/light", "", head), tag.ErrRefConflict)

	refs, err := service.List()
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "light", refs[0].ShortName())
	assert.Equal(t, "v1", refs[1].ShortName())

	deleted, err := service.Delete([]string{"light", "nope"})
	require.NoError(t, err)
	assert.Equal(t, []string{"light"}, deleted)
	_, err = adapter.Resolve("refs/tags/light")
	assert.ErrorIs(t, err, tag.ErrRefNotFound)
}
