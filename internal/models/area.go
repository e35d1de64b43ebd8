package models

type Area struct {
	Name      string `json:"name" yaml:"name"`
	MigunTime int    `json:"migun_time" yaml:"migun_time"`
}
