package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/kozaktomas/face-service/internal/database"
)

// LegacyReport lists personnel whose only embeddings are in the legacy table,
// with their stations when known.
func (s *Service) LegacyReport(ctx context.Context) (database.LegacyReport, error) {
	return BuildLegacyReport(ctx, s.store)
}

// BuildLegacyReport is LegacyReport for callers that only hold a store.
func BuildLegacyReport(ctx context.Context, store Store) (database.LegacyReport, error) {
	ids, err := store.LegacyOnlyPersonnel(ctx)
	if err != nil {
		return database.LegacyReport{}, fmt.Errorf("list legacy personnel: %w", err)
	}
	report := database.LegacyReport{PersonnelIDs: ids, Stations: map[int64]int64{}}
	if len(ids) == 0 {
		return report, nil
	}

	stations, err := store.FetchStationsOf(ctx, ids)
	if err != nil {
		log.Warnf("Failed to resolve stations of legacy personnel: %v", err)
		return report, nil
	}
	report.Stations = stations
	log.Infof("Found %d personnel needing embedding migration", len(ids))
	return report, nil
}

// LegacyMessage is the human-readable summary of a legacy report.
func LegacyMessage(ids []int64) string {
	if len(ids) == 0 {
		return "No personnel need migration"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return fmt.Sprintf("Found %d personnel with only legacy embeddings. "+
		"They need to be re-registered via the /register endpoint with new face photos. "+
		"Personnel IDs: %s", len(ids), strings.Join(parts, ", "))
}
