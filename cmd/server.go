package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrLituation/BlockBox/internal/pkg/aws"
	"github.com/MrLituation/BlockBox/internal/pkg/clients"
	"github.com/MrLituation/BlockBox/internal/pkg/config"
	"github.com/MrLituation/BlockBox/internal/pkg/crypto"
	"github.com/MrLituation/BlockBox/internal/pkg/hardware"
	"github.com/MrLituation/BlockBox/internal/pkg/journal"
	"github.com/MrLituation/BlockBox/internal/pkg/notify"
	"github.com/MrLituation/BlockBox/internal/pkg/otp"
	"github.com/MrLituation/BlockBox/internal/pkg/payment"
	"github.com/MrLituation/BlockBox/internal/pkg/postgres"
	"github.com/MrLituation/BlockBox/internal/pkg/redis"
	"github.com/MrLituation/BlockBox/internal/pkg/state"
	"github.com/MrLituation/BlockBox/internal/pkg/transaction"
	mqttC "github.com/eclipse/paho.mqtt.golang"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	logger  *zap.SugaredLogger
	version = "unknown"
)

const (
	fullBackupCronFrequency = 6 * time.Hour
	shutdownTimeout         = 10 * time.Second

	// keypadEntryWindow bounds how long a collection attempt waits for the
	// buyer to type the code before the attempt is dropped.
	keypadEntryWindow = 2 * time.Minute
)

func runServer() {
	l, _ := zap.NewProduction()
	logger = l.Sugar().Named("blockbox_server")
	defer logger.Sync()
	logger.Infof("Running server version: %s", version)

	serverConfig := config.Config{
		AppName:        viper.GetString("APP_NAME"),
		BrokerURL:      viper.GetString("MOSQUITTO_DOMAIN"),
		MqttUser:       viper.GetString("MOSQUITTO_USER"),
		MqttPassword:   viper.GetString("MOSQUITTO_PASSWORD"),
		PostgresURL:    viper.GetString("DATABASE_URL"),
		RedisURL:       viper.GetString("REDIS_URL"),
		Port:           viper.GetString("PORT"),
		MockMode:       viper.GetBool("MOCK_MODE"),
		OTPSecret:      viper.GetString("OTP_SECRET"),
		EncryptionKey:  viper.GetString("ENCRYPTION_KEY"),
		AllowedAPIKeys: viper.GetStringSlice("ALLOWED_API_KEYS"),
		Payment: config.PaymentConfig{
			URL:    viper.GetString("PAYMENT_SERVICE_URL"),
			APIKey: viper.GetString("PAYMENT_SERVICE_API_KEY"),
		},
		Hardware: config.DefaultHardwareConfig(),
		S3Config: config.S3Config{
			AccessKeyID:     viper.GetString("SPACES_AWS_ACCESS_KEY_ID"),
			SecretAccessKey: viper.GetString("SPACES_AWS_SECRET_ACCESS_KEY"),
			Region:          viper.GetString("SPACES_AWS_REGION"),
			URL:             viper.GetString("SPACES_URL"),
			Bucket:          viper.GetString("SPACES_BUCKET_NAME"),
			BackupEnabled:   viper.GetBool("DB_FULL_BACKUP_ENABLED"),
		},
		Version: version,
	}

	serverClients, err := createClients(serverConfig)
	if err != nil {
		logger.Fatalf("Error creating clients: %s", err)
	}

	if err := serverClients.Notifier.Connect(); err != nil {
		logger.Fatalf("error connecting to mosquitto server: %s", err)
	}

	store := state.NewStore(logger)

	var hw hardware.Controller
	if serverConfig.MockMode {
		logger.Info("Mock mode enabled, using fake hardware")
		fake := hardware.NewFake()
		fake.SetDoorClosed(true)
		hw = fake
	} else {
		pi, err := hardware.NewPiController(serverConfig.Hardware, logger, store.AppendError)
		if err != nil {
			logger.Fatalf("error initializing gpio: %s", err)
		}
		hw = pi
	}

	otpManager := otp.NewManager(serverConfig.OTPSecret, config.OTPValidDuration, logger)
	controller := transaction.NewController(hw, store, otpManager, serverClients.Notifier, serverClients.Payment, serverClients.Journal, transaction.DefaultConfig(), logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	monitor := transaction.NewDoorMonitor(hw, store, config.MonitorInterval, config.PlacementThresholdKg, logger)
	go monitor.Run(ctx)

	if serverConfig.S3Config.BackupEnabled {
		runFullBackup(serverClients)
		configureCronJobs(serverClients)
	}

	webServer := newWebServer(serverConfig, serverClients, store, controller)
	go func() {
		if err := webServer.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Error starting web server: %s", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := webServer.httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutting down web server: %s", err)
	}

	// An open collection window is the buyer mid-pickup; let it finish
	// before releasing the hardware.
	controller.Wait()
	hw.Cleanup()
	serverClients.Notifier.Cleanup()
}

func configureCronJobs(serverClients clients.ServerClients) {
	dataTicker := time.NewTicker(fullBackupCronFrequency)
	go func() {
		for range dataTicker.C {
			runFullBackup(serverClients)
		}
	}()
}

func runFullBackup(serverClients clients.ServerClients) {
	logger.Info("Running full database backup")
	rows, err := serverClients.Postgres.GetAllRows()
	if err != nil {
		logger.Errorf("getting all rows from db: %s", err)
		return
	}

	err = serverClients.AWS.WriteBackupFile(rows)
	if err != nil {
		logger.Errorf("writing backup tmp file: %s", err)
		return
	}

	ctx := context.Background()
	err = serverClients.AWS.UploadBackupFile(ctx)
	if err != nil {
		logger.Errorf("uploading backup file to S3: %s", err)
		return
	}

	logger.Infof("Full backup to S3 success, number of rows backed up: %d", len(rows))
}

func createClients(serverConfig config.Config) (clients.ServerClients, error) {
	redisClient, err := redis.NewRedisClient(serverConfig.RedisURL, false)
	if err != nil {
		return clients.ServerClients{}, fmt.Errorf("creating redis client: %s", err)
	}

	postgresClient, err := postgres.NewPostgresClient(serverConfig.PostgresURL)
	if err != nil {
		return clients.ServerClients{}, fmt.Errorf("creating postgres client: %s", err)
	}

	mosquittoAddr := fmt.Sprintf("mqtts://%s:%s@%s:1883", serverConfig.MqttUser, serverConfig.MqttPassword, serverConfig.BrokerURL)

	insecureSkipVerifyMosquitto := false
	notifier := notify.NewMQTTNotifier(mosquittoAddr, insecureSkipVerifyMosquitto, func(client mqttC.Client) {
		logger.Info("Connected to mosquitto server")
	}, func(client mqttC.Client, err error) {
		logger.Warnf("Connection to mosquitto server lost: %v", err)
	})

	awsClient, err := aws.NewClient(serverConfig)
	if err != nil {
		return clients.ServerClients{}, fmt.Errorf("error creating AWS client: %s", err)
	}

	cryptoUtil, err := crypto.NewUtil(serverConfig.EncryptionKey)
	if err != nil {
		return clients.ServerClients{}, fmt.Errorf("error creating crypto client: %s", err)
	}

	gateway := payment.NewHTTPGateway(serverConfig.Payment.URL, serverConfig.Payment.APIKey)

	return clients.ServerClients{
		Redis:      redisClient,
		Postgres:   postgresClient,
		Notifier:   notifier,
		Payment:    gateway,
		AWS:        awsClient,
		CryptoUtil: cryptoUtil,
		Journal:    journal.New(redisClient, postgresClient, cryptoUtil, serverConfig.Version, logger),
	}, nil
}
