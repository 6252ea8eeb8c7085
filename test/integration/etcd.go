package integration

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ab180/loadshard/coordinator"
	"github.com/rs/zerolog/log"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/thoas/go-funk"
)

const (
	etcdEndpointEnvKey  = "LOADSHARD_TEST_ETCD_ENDPOINT"
	defaultEtcdEndpoint = "127.0.0.1:2379"
)

// ProvideEtcd provides coordinator.Etcd on integration tests.
// Otherwise, coordinator.LocalMemory is provided.
func ProvideEtcd() (crd coordinator.Coordinator, closer func()) {
	if !IsIntegrationTest {
		crd = coordinator.NewLocalMemory()
		return crd, func() { _ = crd.Close() }
	}
	testNs := fmt.Sprintf("loadshard_test_%s/", funk.RandomString(10))

	etcdEndpoint, ok := os.LookupEnv(etcdEndpointEnvKey)
	if !ok {
		etcdEndpoint = defaultEtcdEndpoint
	}
	etcd, err := coordinator.NewEtcd([]string{etcdEndpoint}, testNs)
	So(err, ShouldBeNil)

	// clean all items under test namespace
	closer = func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		log.Info().Str("namespace", testNs).Msg("Closing etcd")
		if _, err := etcd.Delete(ctx, ""); err != nil {
			So(err, ShouldBeNil)
		}
		So(etcd.Close(), ShouldBeNil)
	}
	return etcd, closer
}

// WithCoordinator runs a convey suite with a coordinator provided by ProvideEtcd.
func WithCoordinator(fn func(crd coordinator.Coordinator)) func() {
	return func() {
		crd, closer := ProvideEtcd()
		Reset(closer)
		fn(crd)
	}
}

// ContextWithTimeout returns a context canceled after the convey scope ends or the timeout passes.
func ContextWithTimeout(timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	Reset(cancel)
	return ctx
}
