package extract

import "img-scraper/pkg/models"

func candidate(u, s string) models.ImageCandidate {
	return models.ImageCandidate{URL: u, Strategy: models.Strategy(s)}
}
