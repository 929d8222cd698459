package domain

type MailMessage struct {
	Type string `json:"type"`
	To   string `json:"to"`
	Data any    `json:"data"`
}

type SolveFinishedMailData struct {
	FullName      string  `json:"fullName"`
	FloorPlanName string  `json:"floorPlanName"`
	RunID         string  `json:"runID"`
	Status        string  `json:"status"`
	Fitness       float64 `json:"fitness"`
	Valid         bool    `json:"valid"`
	Generations   int     `json:"generations"`
}
