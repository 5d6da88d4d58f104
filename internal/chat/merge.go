package chat

import "chat-sync-engine/internal/models"

// Display returns the merged display sequence for msgs
func Display(msgs []models.Message) []models.DisplayItem {
	return Merge(Items(msgs))
}

// Items lifts messages into one display item each, without merging
func Items(msgs []models.Message) []models.DisplayItem {
	out := make([]models.DisplayItem, 0, len(msgs))
	for i := range msgs {
		m := msgs[i]
		id := m.ID
		if m.Pending || id == "" {
			id = pendingKey(m.LocalID)
		}
		item := models.DisplayItem{
			ID:         id,
			SenderID:   m.SenderID,
			Kind:       m.Kind,
			MessageIDs: []string{id},
			CreatedAt:  m.CreatedAt,
			Message:    &m,
		}
		if m.Kind == models.KindImage && m.ImageURL != "" {
			item.ImageURLs = []string{m.ImageURL}
		}
		out = append(out, item)
	}
	return out
}

// Merge collapses every maximal run of two or more consecutive image items
// from the same sender into one item carrying all their URLs in order.
// Other items pass through unchanged. Image items that end up with no URL
// are dropped. Merge is idempotent.
func Merge(items []models.DisplayItem) []models.DisplayItem {
	out := make([]models.DisplayItem, 0, len(items))
	for i := 0; i < len(items); {
		it := items[i]
		if it.Kind != models.KindImage {
			out = append(out, it)
			i++
			continue
		}

		j := i + 1
		for j < len(items) && items[j].Kind == models.KindImage && items[j].SenderID == it.SenderID {
			j++
		}
		run := items[i:j]
		i = j

		if len(run) == 1 {
			if len(it.ImageURLs) > 0 {
				out = append(out, it)
			}
			continue
		}

		merged := models.DisplayItem{
			ID:        run[0].ID,
			SenderID:  run[0].SenderID,
			Kind:      models.KindImage,
			Merged:    true,
			CreatedAt: run[0].CreatedAt,
		}
		for _, r := range run {
			merged.MessageIDs = append(merged.MessageIDs, r.MessageIDs...)
			merged.ImageURLs = append(merged.ImageURLs, r.ImageURLs...)
		}
		if len(merged.ImageURLs) == 0 {
			continue
		}
		out = append(out, merged)
	}
	return out
}
