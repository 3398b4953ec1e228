package delegation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

const apnicFixture = "2.3|apnic|20140821|107344|20140821|19821201|+1000\n" +
	"apnic|CN|ipv4|103.37.72.0|1024|20140821|allocated\n" +
	"apnic|JP|ipv6|2001:200::|32|20140821|allocated\n"

func withRirURL(t *testing.T, rir RirName, url string) {
	t.Helper()
	prev := rirURL[rir]
	rirURL[rir] = url
	t.Cleanup(func() { rirURL[rir] = prev })
}

func TestUpdateAllFetchesAndMergesConfiguredRir(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(apnicFixture))
	}))
	defer srv.Close()
	withRirURL(t, Apnic, srv.URL)

	cn, err := NewCountrySpec(Apnic, "CN")
	require.NoError(t, err)
	db := NewDatabase([]CountrySpec{cn}, true, true)

	log := logrus.NewEntry(logrus.New())
	updated, err := db.UpdateAll(context.Background(), srv.Client(), log)
	require.NoError(t, err)
	require.True(t, updated[Apnic])

	v4, v6 := db.Prefixes()
	require.Len(t, v4, 1)
	require.Empty(t, v6)
}

func TestUpdateAllSkipsUnchangedSerial(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte(apnicFixture))
	}))
	defer srv.Close()
	withRirURL(t, Apnic, srv.URL)

	cn, err := NewCountrySpec(Apnic, "CN")
	require.NoError(t, err)
	db := NewDatabase([]CountrySpec{cn}, true, true)
	log := logrus.NewEntry(logrus.New())

	_, err = db.UpdateAll(context.Background(), srv.Client(), log)
	require.NoError(t, err)

	updated, err := db.UpdateAll(context.Background(), srv.Client(), log)
	require.NoError(t, err)
	require.False(t, updated[Apnic])
	require.Equal(t, 2, hits)
}

func TestUpdateAllOneRegistryFailureDoesNotAbortOthers(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(apnicFixture))
	}))
	defer ok.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	withRirURL(t, Apnic, ok.URL)
	withRirURL(t, Arin, bad.URL)

	cn, err := NewCountrySpec(Apnic, "CN")
	require.NoError(t, err)
	us, err := NewCountrySpec(Arin, "US")
	require.NoError(t, err)
	db := NewDatabase([]CountrySpec{cn, us}, true, true)
	log := logrus.NewEntry(logrus.New())

	updated, err := db.UpdateAll(context.Background(), ok.Client(), log)
	require.NoError(t, err)
	require.True(t, updated[Apnic])
	require.False(t, updated[Arin])

	v4, _ := db.Prefixes()
	require.Len(t, v4, 1)
}
