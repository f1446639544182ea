package refresh

import (
	"fmt"
	"log/slog"

	"stockpile/internal/config"
	"stockpile/internal/detect"
	"stockpile/internal/detect/epic"
	"stockpile/internal/detect/gog"
	"stockpile/internal/detect/registry"
	"stockpile/internal/detect/steam"
)

// BuildDetectors constructs the configured detectors in registration order.
func BuildDetectors(cfg *config.Config, logger *slog.Logger) ([]detect.Detector, error) {
	detectors := make([]detect.Detector, 0, len(cfg.Detection.Detectors))
	for _, name := range cfg.Detection.Detectors {
		switch name {
		case steam.Name:
			detectors = append(detectors, steam.New(cfg.Detection.SteamRoot, logger))
		case epic.Name:
			detectors = append(detectors, epic.New(cfg.Detection.EpicManifestsDir, logger))
		case gog.Name:
			detectors = append(detectors, gog.New(cfg.Detection.GOGDatabase, logger))
		case registry.Name:
			detectors = append(detectors, registry.New(registry.NewSystemSource(), logger))
		default:
			return nil, fmt.Errorf("unknown detector %q", name)
		}
	}
	return detectors, nil
}
