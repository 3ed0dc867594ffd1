package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tmeras/resellmart/internal/domain/models"
	"github.com/tmeras/resellmart/internal/notify"
	"github.com/tmeras/resellmart/internal/storage"
)

// fulfilmentTask — единица фоновой работы после фиксации заказа
type fulfilmentTask struct {
	id       string // uuid для корреляции записей в логе
	order    *models.Order
	products []*models.Product
}

// FulfilmentService выполняет необязательные действия после оформления заказа:
// идемпотентную повторную запись, подчистку корзины и рассылку уведомлений.
// Работает на пуле горутин с ограниченной очередью; ошибки логируются и гасятся,
// уже зафиксированный заказ они затронуть не могут.
type FulfilmentService struct {
	log         *slog.Logger
	orderRepo   storage.OrderStorage
	productRepo storage.ProductStorage
	cartRepo    storage.CartStorage
	userRepo    storage.UserStorage
	notifier    notify.Notifier
	queue       chan fulfilmentTask
	wg          sync.WaitGroup
	workers     int
}

func NewFulfilmentService(
	log *slog.Logger,
	orderRepo storage.OrderStorage,
	productRepo storage.ProductStorage,
	cartRepo storage.CartStorage,
	userRepo storage.UserStorage,
	notifier notify.Notifier,
	workers, queueSize int,
) *FulfilmentService {
	if workers < 1 {
		workers = 1
	}
	return &FulfilmentService{
		log:         log,
		orderRepo:   orderRepo,
		productRepo: productRepo,
		cartRepo:    cartRepo,
		userRepo:    userRepo,
		notifier:    notifier,
		queue:       make(chan fulfilmentTask, queueSize),
		workers:     workers,
	}
}

// Start запускает пул воркеров
func (s *FulfilmentService) Start() {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for task := range s.queue {
				s.finalise(context.Background(), task)
			}
		}()
	}
}

// Stop закрывает очередь и дожидается обработки уже принятых задач
func (s *FulfilmentService) Stop() {
	close(s.queue)
	s.wg.Wait()
}

// Enqueue ставит заказ в очередь фоновой обработки и никогда не блокирует
// вызывающего: при переполненной очереди задача отбрасывается с записью в лог.
func (s *FulfilmentService) Enqueue(order *models.Order, products []*models.Product) {
	task := fulfilmentTask{
		id:       uuid.NewString(),
		order:    order,
		products: products,
	}
	select {
	case s.queue <- task:
		s.log.Info("fulfilment task enqueued",
			slog.String("taskID", task.id),
			slog.Int64("orderID", order.ID),
		)
	default:
		s.log.Warn("fulfilment queue is full, task dropped",
			slog.String("taskID", task.id),
			slog.Int64("orderID", order.ID),
		)
	}
}

// finalise выполняет шаги фоновой обработки. Каждый шаг самостоятелен:
// ошибка одного логируется, остальные всё равно выполняются.
func (s *FulfilmentService) finalise(ctx context.Context, task fulfilmentTask) {
	const op = "service.FulfilmentService.finalise"
	logger := s.log.With(
		slog.String("op", op),
		slog.String("taskID", task.id),
		slog.Int64("orderID", task.order.ID),
	)
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("panic during fulfilment", slog.Any("panic", rec))
		}
	}()
	logger.Info("starting fulfilment")

	s.repersist(ctx, logger, task)
	s.cleanupCart(ctx, logger, task)
	s.notifyBuyer(ctx, logger, task)
	s.notifySellers(ctx, logger, task)

	logger.Info("fulfilment finished")
}

// repersist повторно записывает заказ и остатки. В одном процессе с оркестратором
// это no-op: заказ уже существует, остатки уже списаны. Шаг защищает от воркера,
// работающего в другой транзакции или процессе.
func (s *FulfilmentService) repersist(ctx context.Context, logger *slog.Logger, task fulfilmentTask) {
	exists, err := s.orderRepo.OrderExists(ctx, task.order.ID)
	if err != nil {
		logger.Error("failed to check order existence", slog.Any("error", err))
	} else if !exists {
		logger.Error("placed order is missing from storage")
	}

	for _, product := range task.products {
		if err := s.productRepo.EnsureAvailableQuantity(ctx, product.ID, product.AvailableQuantity); err != nil {
			logger.Error("failed to re-persist product quantity",
				slog.Int64("productID", product.ID),
				slog.Any("error", err),
			)
		}
	}
}

// cleanupCart удаляет оставшиеся позиции корзины по купленным товарам
func (s *FulfilmentService) cleanupCart(ctx context.Context, logger *slog.Logger, task fulfilmentTask) {
	productIDs := make([]int64, 0, len(task.order.Items))
	for i := range task.order.Items {
		productIDs = append(productIDs, task.order.Items[i].ProductID)
	}
	if err := s.cartRepo.DeleteItemsByUser(ctx, task.order.UserID, productIDs); err != nil {
		logger.Error("failed to clean up cart", slog.Any("error", err))
	}
}

func (s *FulfilmentService) notifyBuyer(ctx context.Context, logger *slog.Logger, task fulfilmentTask) {
	buyer, err := s.userRepo.GetUserByID(ctx, task.order.UserID)
	if err != nil {
		logger.Error("failed to get buyer for notification", slog.Any("error", err))
		return
	}
	if err := s.notifier.SendBuyerConfirmation(ctx, buyer, task.order); err != nil {
		logger.Error("failed to send buyer confirmation", slog.Any("error", err))
	}
}

// notifySellers группирует позиции заказа по продавцам и отправляет каждому
// ровно одно уведомление: только его позиции и их сумма. Позиции чужих
// продавцов в уведомление не попадают.
func (s *FulfilmentService) notifySellers(ctx context.Context, logger *slog.Logger, task fulfilmentTask) {
	itemsBySeller := make(map[int64][]models.OrderItem)
	for _, item := range task.order.Items {
		itemsBySeller[item.SellerID] = append(itemsBySeller[item.SellerID], item)
	}

	for sellerID, items := range itemsBySeller {
		total := decimal.Zero
		for i := range items {
			total = total.Add(items[i].LinePrice())
		}
		total = total.Round(2)

		seller, err := s.userRepo.GetUserByID(ctx, sellerID)
		if err != nil {
			logger.Error("failed to get seller for notification",
				slog.Int64("sellerID", sellerID),
				slog.Any("error", err),
			)
			continue
		}
		if err := s.notifier.SendSellerConfirmation(ctx, seller, items, total); err != nil {
			logger.Error("failed to send seller confirmation",
				slog.Int64("sellerID", sellerID),
				slog.Any("error", err),
			)
		}
	}
}
