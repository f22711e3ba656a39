package model

// Image is a saved character: the uploaded file plus what the model inferred
// from it. Several rows may reference the same Filename.
type Image struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Filename string `gorm:"size:255;not null;index" json:"filename"`
	Name     string `gorm:"size:255" json:"name"`
	Bio      string `gorm:"type:text" json:"bio"`
}

func (Image) TableName() string {
	return "image"
}
