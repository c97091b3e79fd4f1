package container

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/turbo-auth/config"
	"github.com/oksasatya/turbo-auth/internal/domain/repository"
	"github.com/oksasatya/turbo-auth/pkg/helpers"
)

// app-level container to share constructed components across packages.
// cmd/main fills it; router.InitModules reads it to wire modules.

var (
	cfg         *config.Config
	logger      *logrus.Logger
	pgPool      *pgxpool.Pool
	redisClient *redis.Client

	jwtManager *helpers.JWTManager
	hasher     *helpers.PasswordHasher

	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository

	rabbitPub   *helpers.RabbitPublisher
	gcsUploader *helpers.GCSUploader
)

func SetConfig(c *config.Config)   { cfg = c }
func GetConfig() *config.Config    { return cfg }
func SetLogger(l *logrus.Logger)   { logger = l }
func GetLogger() *logrus.Logger    { return logger }
func SetPGPool(p *pgxpool.Pool)    { pgPool = p }
func GetPGPool() *pgxpool.Pool     { return pgPool }
func SetRedis(r *redis.Client)     { redisClient = r }
func GetRedis() *redis.Client      { return redisClient }
func SetJWT(m *helpers.JWTManager) { jwtManager = m }

// GetJWT panics when no signer was configured: there is no default secret.
func GetJWT() *helpers.JWTManager {
	if jwtManager == nil {
		panic("container: JWT manager not configured")
	}
	return jwtManager
}

func SetHasher(h *helpers.PasswordHasher) { hasher = h }
func GetHasher() *helpers.PasswordHasher {
	if hasher == nil {
		return helpers.NewPasswordHasher()
	}
	return hasher
}

func SetUserRepo(r repository.UserRepository)       { userRepo = r }
func GetUserRepo() repository.UserRepository        { return userRepo }
func SetSessionRepo(r repository.SessionRepository) { sessionRepo = r }
func GetSessionRepo() repository.SessionRepository  { return sessionRepo }

func SetRabbitPub(p *helpers.RabbitPublisher) { rabbitPub = p }
func GetRabbitPub() *helpers.RabbitPublisher  { return rabbitPub }
func SetGCSUploader(u *helpers.GCSUploader)   { gcsUploader = u }
func GetGCSUploader() *helpers.GCSUploader    { return gcsUploader }
