// Command seed fills an empty database with the MI6 fixture data: the
// superuser M, three agents and a handful of pings including two reply
// chains. It does nothing when M already exists.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/ieraasyl/PingService/internal/database"
	"github.com/ieraasyl/PingService/internal/events"
	"github.com/ieraasyl/PingService/internal/logger"
	"github.com/ieraasyl/PingService/internal/models"
	"github.com/ieraasyl/PingService/internal/services"
	"github.com/ieraasyl/PingService/pkg/cache"
	"github.com/ieraasyl/PingService/pkg/config"
	"github.com/ieraasyl/PingService/pkg/utils"
	"github.com/rs/zerolog/log"
)

type place struct {
	name      string
	latitude  float64
	longitude float64
}

var (
	london       = place{"London", 51.5074, -0.1278}
	abuja        = place{"Abuja", 9.0765, 7.3986}
	tokyo        = place{"Tokyo", 35.6762, 139.6503}
	moscow       = place{"Moscow", 55.7558, 37.6173}
	sydney       = place{"Sydney", -33.8688, 151.2093}
	antananarivo = place{"Antananarivo", -18.8792, 47.5079}
	berlin       = place{"Berlin", 52.5200, 13.4050}
	losAngeles   = place{"Los Angeles", 34.0522, -118.2437}
	buenosAires  = place{"Buenos Aires", -34.6037, -58.3816}
	capeTown     = place{"Cape Town", -33.9249, 18.4241}
)

var agents = []services.RegisterInput{
	{Email: "bond@mi6.gov", Name: "James Bond", CodeName: "007", Password: "shakenNotStirred"},
	{Email: "moneypenny@mi6.gov", Name: "Eve Moneypenny", CodeName: "MONEYPENNY", Password: "moneypennySecure"},
	{Email: "q@mi6.gov", Name: "Q", CodeName: "Q", Password: "gadgets4days"},
}

var superuser = services.RegisterInput{
	Email:    "m@mi6.gov",
	Name:     "M",
	CodeName: "M",
	Password: "topSecretM",
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logger.Setup(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("Seeding failed")
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	postgresDB, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		return fmt.Errorf("connect to PostgreSQL: %w", err)
	}
	defer postgresDB.Close()

	if err := postgresDB.RunMigrations(ctx, database.Schema); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	// Redis is only needed to drop cached latest pings of a running server.
	var pingCache *cache.Cache
	if cfg.Cache.Enabled {
		redisDB, err := database.NewRedisDB(&cfg.Redis)
		if err != nil {
			return fmt.Errorf("connect to Redis: %w", err)
		}
		defer redisDB.Close()
		pingCache = cache.NewCache(redisDB.Client())
	}

	publisher, err := events.NewPublisher(ctx, &cfg.AMQP)
	if err != nil {
		return fmt.Errorf("connect to the message broker: %w", err)
	}
	defer publisher.Close()

	users, err := services.NewUserService(postgresDB, nil,
		services.NewPasswordPolicy(cfg.Password.MinLength, cfg.Password.BcryptCost))
	if err != nil {
		return err
	}

	_, err = postgresDB.GetUserByEmail(ctx, superuser.Email)
	switch {
	case err == nil:
		log.Info().Msg("Database already seeded, nothing to do")
		return nil
	case !errors.Is(err, utils.ErrNotFound):
		return fmt.Errorf("look up superuser: %w", err)
	}

	s := &seeder{users: users, pings: services.NewPingService(postgresDB, pingCache, publisher)}
	return s.seed(ctx)
}

type seeder struct {
	users *services.UserService
	pings *services.PingService
}

func (s *seeder) seed(ctx context.Context) error {
	m, err := s.users.CreateSuperuser(ctx, superuser)
	if err != nil {
		return fmt.Errorf("create superuser: %w", err)
	}
	log.Info().Str("code_name", m.CodeName).Msg("Superuser created")

	ids := make(map[string]uuid.UUID, len(agents))
	for _, in := range agents {
		user, err := s.users.CreateUser(ctx, in)
		if err != nil {
			return fmt.Errorf("create agent %s: %w", in.CodeName, err)
		}
		ids[in.CodeName] = user.ID
		log.Info().Str("code_name", user.CodeName).Msg("Agent created")
	}

	bond, moneypenny, q := ids["007"], ids["MONEYPENNY"], ids["Q"]

	for _, p := range []struct {
		owner uuid.UUID
		at    place
	}{
		{bond, london},
		{moneypenny, abuja},
		{q, tokyo},
	} {
		if _, err := s.ping(ctx, p.owner, p.at, nil); err != nil {
			return err
		}
	}

	if err := s.chain(ctx, []uuid.UUID{bond, moneypenny, q}, moscow, sydney, antananarivo); err != nil {
		return err
	}
	if err := s.chain(ctx, []uuid.UUID{q, bond, moneypenny, bond}, berlin, losAngeles, buenosAires, capeTown); err != nil {
		return err
	}

	log.Info().Msg("Seeding complete")
	return nil
}

// chain creates a ping at the first place and a reply to the previous ping
// at each following one. owners[i] owns the ping at places[i].
func (s *seeder) chain(ctx context.Context, owners []uuid.UUID, places ...place) error {
	var parent *models.Ping
	for i, at := range places {
		p, err := s.ping(ctx, owners[i], at, parent)
		if err != nil {
			return err
		}
		parent = p
	}
	return nil
}

func (s *seeder) ping(ctx context.Context, owner uuid.UUID, at place, parent *models.Ping) (*models.Ping, error) {
	in := services.PingInput{Latitude: &at.latitude, Longitude: &at.longitude}

	var p *models.Ping
	var err error
	if parent == nil {
		p, err = s.pings.Create(ctx, owner, in)
	} else {
		p, err = s.pings.Respond(ctx, parent.ID, owner, in)
	}
	if err != nil {
		return nil, fmt.Errorf("ping %s: %w", at.name, err)
	}

	log.Info().Int64("ping_id", p.ID).Str("place", at.name).Msg("Ping created")
	return p, nil
}
