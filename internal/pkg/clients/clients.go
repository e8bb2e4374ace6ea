package clients

import (
	"github.com/MrLituation/BlockBox/internal/pkg/aws"
	"github.com/MrLituation/BlockBox/internal/pkg/crypto"
	"github.com/MrLituation/BlockBox/internal/pkg/journal"
	"github.com/MrLituation/BlockBox/internal/pkg/notify"
	"github.com/MrLituation/BlockBox/internal/pkg/payment"
	"github.com/MrLituation/BlockBox/internal/pkg/postgres"
	"github.com/MrLituation/BlockBox/internal/pkg/redis"
)

type ServerClients struct {
	Redis      redis.Client
	Postgres   postgres.Client
	Notifier   notify.MQTTNotifier
	Payment    payment.Gateway
	AWS        aws.Client
	CryptoUtil crypto.Util
	Journal    *journal.Journal
}
