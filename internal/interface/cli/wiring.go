package cli

import (
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/tkoike/issuegate/internal/app"
	"github.com/tkoike/issuegate/internal/app/config"
	"github.com/tkoike/issuegate/internal/domain/repository"
	"github.com/tkoike/issuegate/internal/domain/service/fingerprint"
	"github.com/tkoike/issuegate/internal/domain/service/safety"
	"github.com/tkoike/issuegate/internal/infra/persistence/sqlite"
	"github.com/tkoike/issuegate/internal/infra/repository/attemptlog"
	"github.com/tkoike/issuegate/internal/infra/repository/lockrepo"
	"github.com/tkoike/issuegate/internal/infra/repository/registryrepo"
	"github.com/tkoike/issuegate/internal/interface/external/trackergw"
	"github.com/tkoike/issuegate/internal/usecase/issuesync"
)

// Persisted layout under the configured home, one namespace per store.
func registryPath(cfg config.Config) string {
	return filepath.Join(cfg.Home(), "var", "registry", "records.json")
}

func lockDir(cfg config.Config) string {
	return filepath.Join(cfg.Home(), "var", "lock")
}

func attemptsDir(cfg config.Config) string {
	return filepath.Join(cfg.Home(), "var", "attempts")
}

func newRegistryRepo(fs afero.Fs, cfg config.Config) *registryrepo.FileRegistryRepository {
	return registryrepo.NewFileRegistryRepository(fs, registryPath(cfg))
}

func newLockRepo(fs afero.Fs, cfg config.Config) *lockrepo.FileLockRepository {
	return lockrepo.NewFileLockRepository(fs, lockDir(cfg))
}

func newAttemptLog(fs afero.Fs, cfg config.Config) *attemptlog.FileAttemptLog {
	actorRetention := cfg.LoopWindow()
	if cfg.CooldownInterval() > actorRetention {
		actorRetention = cfg.CooldownInterval()
	}
	return attemptlog.NewFileAttemptLog(fs, attemptsDir(cfg), cfg.RateLimitWindow(), actorRetention)
}

func safetyConfig(cfg config.Config) safety.Config {
	return safety.Config{
		LockTTL:          cfg.LockTTL(),
		RateLimitMaxOps:  cfg.RateLimitMaxOps(),
		RateLimitWindow:  cfg.RateLimitWindow(),
		LoopThreshold:    cfg.LoopThreshold(),
		LoopWindow:       cfg.LoopWindow(),
		CooldownInterval: cfg.CooldownInterval(),
	}
}

// newProcessUseCase wires the whole engine for one invocation. The
// history store is optional; a failure to open it downgrades to a
// warning because auditing must never block a decision.
func newProcessUseCase(cfg config.Config) (*issuesync.ProcessUseCase, func(), error) {
	fs := afero.NewOsFs()

	coordinator := safety.NewCoordinator(newLockRepo(fs, cfg), newAttemptLog(fs, cfg), safetyConfig(cfg))
	fingerprinter := fingerprint.New(cfg.FingerprintLength())
	registry := newRegistryRepo(fs, cfg)
	tracker := trackergw.NewRunner(cfg.TrackerBin(), cfg.TrackerTimeout())

	var history repository.HistoryRepository
	closer := func() {}
	if h, err := sqlite.NewHistoryRepository(cfg.HistoryDBPath()); err != nil {
		app.GetLogger().Warn("open history store: %v", err)
	} else {
		history = h
		closer = func() {
			if cerr := h.Close(); cerr != nil {
				app.GetLogger().Warn("close history store: %v", cerr)
			}
		}
	}

	uc := issuesync.NewProcessUseCase(coordinator, fingerprinter, registry, tracker, history)
	return uc, closer, nil
}
