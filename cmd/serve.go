package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Krish-Depani/session-admission/config"
	"github.com/Krish-Depani/session-admission/controllers"
	"github.com/Krish-Depani/session-admission/database"
	"github.com/Krish-Depani/session-admission/liveness"
	"github.com/Krish-Depani/session-admission/notifier"
	"github.com/Krish-Depani/session-admission/routes"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the session admission HTTP service",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func init() {
	RootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	var redisClient *database.RedisClient
	if env.RedisAddr != "" {
		redisClient, err = database.GetRedisClient(env.RedisAddr, env.RedisPass, env.RedisDB)
		if err != nil {
			return err
		}
		defer redisClient.Close()
	}

	hub := notifier.NewHub()
	n, err := newNotifier(hub, redisClient)
	if err != nil {
		return err
	}
	defer n.Close()

	opts := []liveness.Option{liveness.WithNotifier(n)}
	if redisClient != nil {
		opts = append(opts, liveness.WithEvictionLedger(redisClient))
	}
	svc := liveness.NewService(store.Sessions(), newResolver(store), opts...)

	env.WatchConfigFile(func(d config.AdmissionDefaults) {
		log.WithField("reaperIntervalSeconds", d.ReaperIntervalSeconds).Debug("Admission defaults applied")
	})

	if env.AdminToken == "" {
		log.Warn("ADMIN_TOKEN is empty, dashboard and admin routes are unauthenticated")
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), controllers.RequestLogger())
	routes.SetupRoutes(r,
		controllers.NewAuthController(env.AdminToken),
		controllers.NewSessionController(svc),
		controllers.NewDashboardController(svc, hub),
	)
	srv := &http.Server{
		Addr:    ":" + env.Port,
		Handler: r,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithFields(log.Fields{
			"port":    env.Port,
			"storage": env.StorageDriver,
		}).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return svc.RunReaper(gctx)
	})
	if redisClient != nil {
		g.Go(func() error {
			return notifier.Relay(gctx, redisClient, env.EventChannel, hub)
		})
	}

	return g.Wait()
}

// newNotifier wires the configured sinks. With Redis the local hub is fed
// by the relay, which also carries events from other server instances.
func newNotifier(hub *notifier.Hub, redisClient *database.RedisClient) (*notifier.Notifier, error) {
	var opts []notifier.Option
	if redisClient != nil {
		opts = append(opts,
			notifier.WithPublisher(notifier.NewRedisPublisher(redisClient, env.EventChannel)),
			notifier.WithoutLocalDelivery(),
		)
	}
	if kp := notifier.NewKafkaPublisher(env.KafkaBrokerList(), env.KafkaTopic); kp != nil {
		opts = append(opts, notifier.WithPublisher(kp))
	}
	if env.NATSURL != "" {
		np, err := notifier.NewNATSPublisher(env.NATSURL, env.NATSSubject)
		if err != nil {
			return nil, err
		}
		opts = append(opts, notifier.WithPublisher(np))
	}
	return notifier.New(hub, opts...), nil
}
