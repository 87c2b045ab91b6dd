//go:build wireinject

package di

import (
	"context"

	"github.com/google/wire"

	"github.com/sandeepkv93/account-security-service/internal/app"
	"github.com/sandeepkv93/account-security-service/internal/config"
	"github.com/sandeepkv93/account-security-service/internal/http/handler"
	"github.com/sandeepkv93/account-security-service/internal/repository"
	"github.com/sandeepkv93/account-security-service/internal/security"
	"github.com/sandeepkv93/account-security-service/internal/service"
)

var storageSet = wire.NewSet(
	provideDB,
	provideRedis,
	repository.NewUserRepository,
	repository.NewCredentialRepository,
	repository.NewSecurityTokenRepository,
	repository.NewSessionRepository,
)

var securitySet = wire.NewSet(
	provideCryptoBox,
	providePasswordHasher,
	provideJWTManager,
	provideCookieOptions,
	wire.Bind(new(service.PasswordHasher), new(*security.PasswordHasher)),
	wire.Bind(new(service.PasswordVerifier), new(*security.PasswordHasher)),
	wire.Bind(new(service.ChallengeSigner), new(*security.JWTManager)),
)

var serviceSet = wire.NewSet(
	provideLimiter,
	provideSessionMissCache,
	provideTokenVault,
	provideTwoFactorEngine,
	provideSessionRegistry,
	provideEmailDispatcher,
	provideAccountService,
	provideAuthenticationCoordinator,
	wire.Bind(new(service.EmailSender), new(*service.EmailDispatcher)),
	wire.Bind(new(service.SessionResolver), new(*service.SessionRegistry)),
	wire.Bind(new(service.AuthServiceInterface), new(*service.AuthenticationCoordinator)),
	wire.Bind(new(service.AccountServiceInterface), new(*service.AccountService)),
)

var httpSet = wire.NewSet(
	handler.NewAuthHandler,
	handler.NewUserHandler,
	provideReadiness,
	provideRouter,
	provideHTTPServer,
)

func InitializeApp(ctx context.Context, cfg *config.Config) (*app.App, func(), error) {
	wire.Build(
		provideLogger,
		provideObservability,
		storageSet,
		securitySet,
		serviceSet,
		httpSet,
		provideSweeper,
		provideApp,
	)
	return nil, nil, nil
}

func InitializeMaintenance(cfg *config.Config) (*Maintenance, func(), error) {
	wire.Build(
		provideDB,
		provideRedis,
		repository.NewSecurityTokenRepository,
		repository.NewSessionRepository,
		provideSessionMissCache,
		provideTokenVault,
		provideSessionRegistry,
		provideMaintenance,
	)
	return nil, nil, nil
}
