package event

import (
	"time"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
)

var EventPersistCreateFunc = eventPersistCreate

func CreateEvent(sourceType string, sourceId types.ID, sourceDesc string, category Category,
	properties []Property, creatorId types.ID, creatorName string, db *gorm.DB) error {

	record := EventRecord{
		Event: Event{
			SourceType: sourceType,
			SourceId:   sourceId,
			SourceDesc: sourceDesc,

			Category:   category,
			Properties: properties,

			CreatorId:   creatorId,
			CreatorName: creatorName,
		},
		Synced:    false,
		Timestamp: time.Now(),
	}
	return EventPersistCreateFunc(&record, db)
}

func eventPersistCreate(record *EventRecord, db *gorm.DB) error {
	return db.Create(record).Error
}
