package message

import "time"

type Category string

const (
	CategoryCompliment    Category = "compliment"
	CategoryEncouragement Category = "encouragement"
	CategoryGratitude     Category = "gratitude"
	CategoryFunDare       Category = "fun_dare"
)

var Categories = []Category{
	CategoryCompliment,
	CategoryEncouragement,
	CategoryGratitude,
	CategoryFunDare,
}

func (c Category) Valid() bool {
	for _, v := range Categories {
		if c == v {
			return true
		}
	}
	return false
}

// Message is one anonymous submission. IPHash and UAHash are keyed one-way
// digests of the sender signals and never leave the server.
type Message struct {
	ID          string    `gorm:"primaryKey;type:text"`
	RecipientID string    `gorm:"type:text;index;not null"`
	Category    Category  `gorm:"type:text;not null"`
	Content     string    `gorm:"type:text;not null"`
	CreatedAt   time.Time `gorm:"not null;default:now()"`
	UpdatedAt   time.Time `gorm:"not null;default:now()"`
	Deleted     bool      `gorm:"not null;default:false"`
	Reported    bool      `gorm:"not null;default:false"`
	IPHash      string    `gorm:"type:text;not null"`
	UAHash      string    `gorm:"type:text;not null"`
}
