package service

import (
	"sort"

	"github.com/noah-isme/educore-sync/internal/models"
)

// PartitionsOf groups records by category. Records without a category are left out.
// Each partition is ordered by creation time, ties broken by id.
func PartitionsOf(records []*models.Record) map[string][]*models.Record {
	partitions := make(map[string][]*models.Record)
	for _, rec := range records {
		if !rec.HasCategory() {
			continue
		}
		partitions[rec.Category] = append(partitions[rec.Category], rec)
	}
	for _, members := range partitions {
		sortByCreation(members)
	}
	return partitions
}

// SortedPartitions returns PartitionsOf as a slice ordered by category name.
func SortedPartitions(records []*models.Record) []models.Partition {
	grouped := PartitionsOf(records)
	categories := make([]string, 0, len(grouped))
	for category := range grouped {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	result := make([]models.Partition, 0, len(categories))
	for _, category := range categories {
		result = append(result, models.Partition{Category: category, Records: grouped[category]})
	}
	return result
}

func sortByCreation(records []*models.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.Before(records[j].CreatedAt)
		}
		return records[i].ID < records[j].ID
	})
}
