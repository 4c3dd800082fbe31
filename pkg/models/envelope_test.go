package models_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ICEcream2714/ktpm-btl-cs4/pkg/models"
)

func TestDecodeEnvelope_Variants(t *testing.T) {
	obs := models.Observation{ID: "x", Category: "Gold", Price: "3250.00", ObservedAt: time.Unix(0, 0).UTC()}

	item, _ := json.Marshal(models.ItemUpdate(obs))
	bulk, _ := json.Marshal(models.BulkUpdate("Gold", []models.Observation{obs}))
	tomb, _ := json.Marshal(models.TombstoneUpdate("Gold", "x"))

	env, err := models.DecodeEnvelope(item)
	if err != nil || env.Item == nil || env.Item.ID != "x" {
		t.Errorf("Item variant broken: %+v err=%v", env, err)
	}

	env, err = models.DecodeEnvelope(bulk)
	if err != nil || len(env.Items) != 1 {
		t.Errorf("Bulk variant broken: %+v err=%v", env, err)
	}

	env, err = models.DecodeEnvelope(tomb)
	if err != nil || !env.Deleted || env.ID != "x" || env.Type != "Gold" {
		t.Errorf("Tombstone variant broken: %+v err=%v", env, err)
	}
}

func TestDecodeEnvelope_Rejections(t *testing.T) {
	cases := [][]byte{
		[]byte("{broken"),
		[]byte(`{"item":{}}`),
		[]byte(`{"type":"X","deleted":true}`),
	}
	for _, payload := range cases {
		if _, err := models.DecodeEnvelope(payload); !errors.Is(err, models.ErrBadEnvelope) {
			t.Errorf("Expected ErrBadEnvelope for %s, got %v", payload, err)
		}
	}
}
