package models

// Zone is a geographic grouping of hospitals, supervised by csm users.
type Zone struct {
	BaseModel
	Name string `gorm:"uniqueIndex;size:100;not null" json:"name"`
}

// Society is a partner institution whose participants are supervised by professors.
type Society struct {
	BaseModel
	Name string `gorm:"uniqueIndex;size:150;not null" json:"name"`
}

// Hospital is a training site. Every resident and tutor belongs to one.
type Hospital struct {
	BaseModel
	Name   string `gorm:"size:150;not null" json:"name"`
	ZoneID string `gorm:"size:36;index" json:"zoneId"`

	Zone *Zone `gorm:"foreignKey:ZoneID" json:"-"`
}
