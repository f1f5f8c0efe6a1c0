package search

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theexperiencecompany/gaia-sub002/internal/integration"
)

type fakeRemote struct {
	healthy  bool
	ids      []string
	err      error
	indexed  chan []integration.Descriptor
	searched int
}

func (f *fakeRemote) Healthy() bool { return f.healthy }

func (f *fakeRemote) SearchIDs(string, int) ([]string, error) {
	f.searched++
	return f.ids, f.err
}

func (f *fakeRemote) IndexCatalog(catalog []integration.Descriptor) error {
	if f.indexed != nil {
		f.indexed <- catalog
	}
	return nil
}

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestServiceUsesLocalIndexWithoutRemote(t *testing.T) {
	svc := NewService(nil, DefaultPipeline, quietLogger())
	got := svc.Visible(fixture(), State{Query: "slak"}, "")
	if assert.NotEmpty(t, got) {
		assert.Equal(t, "slack", got[0].ID)
	}
}

func TestServiceSkipsUnhealthyRemote(t *testing.T) {
	remote := &fakeRemote{healthy: false, ids: []string{"notion"}}
	svc := NewService(remote, DefaultPipeline, quietLogger())

	got := svc.Visible(fixture(), State{Query: "slack"}, "")
	assert.Equal(t, "slack", got[0].ID)
	assert.Zero(t, remote.searched)
}

func TestServiceRanksRemoteHitsThenLocalCustom(t *testing.T) {
	remote := &fakeRemote{healthy: true, ids: []string{"notion", "custom-1", "ghost", "notion"}}
	svc := NewService(remote, DefaultPipeline, quietLogger())

	got := svc.Visible(fixture(), State{Query: "weather"}, "u1")
	assert.Equal(t, []string{"notion", "custom-1"}, ids(got))
}

func TestServiceFallsBackOnRemoteError(t *testing.T) {
	remote := &fakeRemote{healthy: true, err: errors.New("boom")}
	svc := NewService(remote, DefaultPipeline, quietLogger())

	got := svc.Visible(fixture(), State{Query: "git"}, "")
	require.NotEmpty(t, got)
	assert.Equal(t, "github", got[0].ID)
	assert.Equal(t, 1, remote.searched)
}

func TestServiceEmptyQueryDoesNotSearchRemote(t *testing.T) {
	remote := &fakeRemote{healthy: true}
	svc := NewService(remote, DefaultPipeline, quietLogger())

	got := svc.Visible(fixture(), State{Category: "developer"}, "")
	assert.Equal(t, []string{"github"}, ids(got))
	assert.Zero(t, remote.searched)
}

func TestServiceIndexCatalog(t *testing.T) {
	remote := &fakeRemote{healthy: true, indexed: make(chan []integration.Descriptor, 1)}
	svc := NewService(remote, DefaultPipeline, quietLogger())

	svc.IndexCatalog([]integration.Descriptor{{ID: "gmail"}})

	select {
	case got := <-remote.indexed:
		assert.Equal(t, "gmail", got[0].ID)
	case <-time.After(time.Second):
		t.Fatal("catalog was not indexed")
	}
}
