package domain

import "time"

type UserProfile struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	Age              int       `json:"age"`
	Gender           string    `json:"gender"`
	HeightCm         float64   `json:"heightCm"`
	WeightKg         float64   `json:"weightKg"`
	TargetWeightKg   float64   `json:"targetWeightKg"`
	ActivityLevel    string    `json:"activityLevel"`
	Goal             string    `json:"goal"`
	DailyCalorieGoal int       `json:"dailyCalorieGoal"`
	WaterGoalMl      int       `json:"waterGoalMl"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

type MealEntry struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	MealType string    `json:"mealType"`
	Calories int       `json:"calories"`
	ProteinG float64   `json:"proteinG"`
	CarbsG   float64   `json:"carbsG"`
	FatG     float64   `json:"fatG"`
	LoggedAt time.Time `json:"loggedAt"`
}

// DayLog keeps meals in insertion order.
type DayLog struct {
	Date      string      `json:"date"`
	Meals     []MealEntry `json:"meals"`
	WaterMl   int         `json:"waterMl"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

type DayPlan struct {
	Date      string      `json:"date"`
	Meals     []MealEntry `json:"meals"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

type ExerciseEntry struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	DurationMin    int       `json:"durationMin"`
	CaloriesBurned int       `json:"caloriesBurned"`
	LoggedAt       time.Time `json:"loggedAt"`
}

type DayExerciseLog struct {
	Date      string          `json:"date"`
	Exercises []ExerciseEntry `json:"exercises"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type Reminder struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Time      string         `json:"time"`
	Days      []time.Weekday `json:"days"`
	Enabled   bool           `json:"enabled"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// WeightEntry holds one scalar per date; a later write for the same date
// overwrites the earlier one.
type WeightEntry struct {
	Date      string    `json:"date"`
	WeightKg  float64   `json:"weightKg"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// RecipeBookItem is keyed by a stable id, usually the originating post id,
// so saving the same post twice does not create duplicates.
type RecipeBookItem struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Author   string    `json:"author"`
	ImageURL string    `json:"imageUrl"`
	Content  string    `json:"content"`
	SavedAt  time.Time `json:"savedAt"`
}

type Medicine struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Dosage            string    `json:"dosage"`
	Times             []string  `json:"times"`
	Stock             int       `json:"stock"`
	LowStockThreshold int       `json:"lowStockThreshold"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

type TakenRecord struct {
	ID         string    `json:"id"`
	MedicineID string    `json:"medicineId"`
	Date       string    `json:"date"`
	Time       string    `json:"time"`
	TakenAt    time.Time `json:"takenAt"`
}

type AdherenceDay struct {
	Date       string `json:"date"`
	TotalDoses int    `json:"totalDoses"`
	TakenDoses int    `json:"takenDoses"`
	Perfect    bool   `json:"perfect"`
}

// Badge unlock timestamps are set once. Only a full wipe clears them.
type Badge struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	UnlockedAt time.Time `json:"unlockedAt"`
}

func (b Badge) Unlocked() bool {
	return !b.UnlockedAt.IsZero()
}

// StreakState always satisfies Longest >= Current.
type StreakState struct {
	Current        int    `json:"current"`
	Longest        int    `json:"longest"`
	LastLoggedDate string `json:"lastLoggedDate"`
}

type MedicationState struct {
	LastProcessedDate string          `json:"lastProcessedDate"`
	TakenToday        map[string]bool `json:"takenToday"`
	History           []AdherenceDay  `json:"history"`
	PerfectStreak     StreakState     `json:"perfectStreak"`
}

type Settings struct {
	Theme  string `json:"theme"`
	APIKey string `json:"apiKey,omitempty"`
}
