package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/qaforum/models"
	"github.com/cppla/qaforum/utils"
)

// StatsController provides forum statistics such as counts and daily page views.
type StatsController struct {
	db *gorm.DB
}

// NewStatsController creates a new StatsController instance.
func NewStatsController(db *gorm.DB) *StatsController {
	return &StatsController{db: db}
}

// GetStats returns aggregate statistics for the forum.
func (s *StatsController) GetStats(ctx *gin.Context) {
	var userCount, questionCount, answerCount, commentCount, todayViews int64

	for name, c := range map[string]struct {
		model any
		out   *int64
	}{
		"users":     {&models.User{}, &userCount},
		"questions": {&models.Question{}, &questionCount},
		"answers":   {&models.Answer{}, &answerCount},
		"comments":  {&models.Comment{}, &commentCount},
	} {
		if err := s.db.Model(c.model).Count(c.out).Error; err != nil {
			utils.Sugar.Warnw("stats count failed", "table", name, "err", err)
			*c.out = 0
		}
	}

	today := time.Now().In(time.Local).Format("2006-01-02")
	if err := s.db.Model(&models.PageView{}).
		Where("day = ?", today).
		Select("COALESCE(SUM(count),0)").
		Scan(&todayViews).Error; err != nil {
		utils.Sugar.Warnw("stats page views failed", "day", today, "err", err)
		todayViews = 0
	}

	utils.Success(ctx, gin.H{
		"user_count":     userCount,
		"question_count": questionCount,
		"answer_count":   answerCount,
		"comment_count":  commentCount,
		"today_views":    todayViews,
	})
}

// GetQuestionStats returns page views, answers and total votes for one question.
func (s *StatsController) GetQuestionStats(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		utils.Error(ctx, http.StatusNotFound, 40401, "question not found")
		return
	}

	var question models.Question
	if err := s.db.Select("id").First(&question, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40401, "question not found")
			return
		}
		utils.Sugar.Errorw("failed to load question", "question_id", id, "err", err)
		utils.Error(ctx, http.StatusInternalServerError, 50001, "failed to load question")
		return
	}

	var views int64
	paths := []string{
		fmt.Sprintf("/%d/", id),
		fmt.Sprintf("/%d/answers/", id),
		fmt.Sprintf("/questions/%d/", id),
	}
	if err := s.db.Model(&models.PageView{}).
		Where("path IN ?", paths).
		Select("COALESCE(SUM(count),0)").
		Scan(&views).Error; err != nil {
		utils.Sugar.Warnw("question page views failed", "question_id", id, "err", err)
		views = 0
	}

	var totals struct {
		Answers int64
		Votes   int64
	}
	if err := s.db.Model(&models.Answer{}).
		Where("question_id = ?", id).
		Select("COUNT(*) AS answers, COALESCE(SUM(votes),0) AS votes").
		Scan(&totals).Error; err != nil {
		utils.Sugar.Warnw("question answer totals failed", "question_id", id, "err", err)
		totals.Answers, totals.Votes = 0, 0
	}

	utils.Success(ctx, gin.H{
		"question_id":  id,
		"views":        views,
		"answer_count": totals.Answers,
		"vote_count":   totals.Votes,
	})
}
